package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const TriggerIDPrefix = "sip-scheduler-"

func TriggerIDFor(planID uuid.UUID) string {
	return TriggerIDPrefix + planID.String()
}

// PlanIDFromTrigger reverses TriggerIDFor. ok is false for keys this system does not own.
func PlanIDFromTrigger(triggerID string) (uuid.UUID, bool) {
	if !strings.HasPrefix(triggerID, TriggerIDPrefix) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(strings.TrimPrefix(triggerID, TriggerIDPrefix))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// JobPayload is the fixed payload every firing of a trigger delivers.
type JobPayload struct {
	PlanID        uuid.UUID `json:"sip_id"`
	Cadence       Cadence   `json:"frequency"`
	ScheduledTime time.Time `json:"scheduled_time"`
}

type Trigger struct {
	ID       string     `json:"id"`
	Cronspec string     `json:"cronspec"`
	Payload  JobPayload `json:"payload"`
}

func (t Trigger) String() string {
	return fmt.Sprintf("%s(%s)", t.ID, t.Cronspec)
}
