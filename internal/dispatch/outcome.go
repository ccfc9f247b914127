package dispatch

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/vultisig/sip/types"
)

// Outcome tells the transport what to do with a delivered job.
type Outcome int

const (
	// OutcomeExecuted: the job is complete and the trigger stays.
	OutcomeExecuted Outcome = iota
	// OutcomeDeregistered: the job is complete and the plan's trigger was removed.
	OutcomeDeregistered
	// OutcomeRetry: hand the job back to the transport's retry policy.
	OutcomeRetry
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExecuted:
		return "executed"
	case OutcomeDeregistered:
		return "deregistered"
	case OutcomeRetry:
		return "retry"
	default:
		return "unknown"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

type Result struct {
	Outcome       Outcome          `json:"outcome"`
	PlanID        uuid.UUID        `json:"sip_id"`
	Reason        string           `json:"reason,omitempty"`
	Status        types.PlanStatus `json:"status,omitempty"`
	TradeID       string           `json:"trade_id,omitempty"`
	TxHash        string           `json:"transaction_hash,omitempty"`
	NextExecution *time.Time       `json:"next_execution,omitempty"`
	Err           error            `json:"-"`
}

func (r Result) MarshalJSON() ([]byte, error) {
	type alias Result
	out := struct {
		alias
		Error string `json:"error,omitempty"`
	}{alias: alias(r)}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}
