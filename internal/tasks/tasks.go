package tasks

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/vultisig/sip/types"
)

const DefaultQueueName = "sip-execution"

const TypeExecutePlan = "sip:execute"

func NewExecutePlanTask(payload types.JobPayload, opts ...asynq.Option) (*asynq.Task, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}
	return asynq.NewTask(TypeExecutePlan, buf, opts...), nil
}

func ParseJobPayload(task *asynq.Task) (types.JobPayload, error) {
	var payload types.JobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return types.JobPayload{}, fmt.Errorf("failed to unmarshal job payload: %w", err)
	}
	if payload.PlanID == uuid.Nil {
		return types.JobPayload{}, fmt.Errorf("job payload has no plan id")
	}
	return payload, nil
}
