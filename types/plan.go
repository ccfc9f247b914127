package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

var cadences = []Cadence{CadenceDaily, CadenceWeekly, CadenceMonthly}

func (c Cadence) Valid() bool {
	for _, v := range cadences {
		if c == v {
			return true
		}
	}
	return false
}

// Next advances from by exactly one cadence unit.
func (c Cadence) Next(from time.Time) (time.Time, error) {
	switch c {
	case CadenceDaily:
		return from.AddDate(0, 0, 1), nil
	case CadenceWeekly:
		return from.AddDate(0, 0, 7), nil
	case CadenceMonthly:
		return from.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, NewValidationError(
			fmt.Errorf("invalid cadence: %q", string(c)),
			"Invalid frequency. Must be daily, weekly, or monthly",
		)
	}
}

type PlanStatus string

const (
	PlanStatusActive            PlanStatus = "active"
	PlanStatusPaused            PlanStatus = "paused"
	PlanStatusCompleted         PlanStatus = "completed"
	PlanStatusInsufficientFunds PlanStatus = "insufficient_funds"
)

var planStatuses = []PlanStatus{
	PlanStatusActive,
	PlanStatusPaused,
	PlanStatusCompleted,
	PlanStatusInsufficientFunds,
}

func (s PlanStatus) Valid() bool {
	for _, v := range planStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ParsePlanStatus returns a ValidationError for anything outside the closed status set.
func ParsePlanStatus(raw string) (PlanStatus, error) {
	s := PlanStatus(raw)
	if !s.Valid() {
		names := make([]string, 0, len(planStatuses))
		for _, v := range planStatuses {
			names = append(names, string(v))
		}
		return "", NewValidationError(
			fmt.Errorf("invalid plan status: %q", raw),
			"Invalid status. Must be one of: "+strings.Join(names, ", "),
		)
	}
	return s, nil
}

// CanTransition reports whether an explicit status update from s to next is allowed.
// Owners pause, resume and complete plans; insufficient_funds is only ever set
// by a failed execution, and completed is terminal.
func (s PlanStatus) CanTransition(next PlanStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case PlanStatusActive:
		return next == PlanStatusPaused || next == PlanStatusCompleted
	case PlanStatusPaused, PlanStatusInsufficientFunds:
		return next == PlanStatusActive || next == PlanStatusCompleted
	default:
		return false
	}
}

// FailureStatus is the status a plan takes when its trade could not be executed.
func FailureStatus(err error) PlanStatus {
	if IsInsufficientFunds(err) {
		return PlanStatusInsufficientFunds
	}
	return PlanStatusPaused
}

type Plan struct {
	ID              uuid.UUID       `json:"id"`
	WalletID        string          `json:"wallet_id"`
	FromAsset       string          `json:"from_token"`
	ToAsset         string          `json:"to_token"`
	Amount          decimal.Decimal `json:"amount"`
	Cadence         Cadence         `json:"frequency"`
	Status          PlanStatus      `json:"status"`
	LastExecution   *time.Time      `json:"last_execution,omitempty"`
	NextExecution   time.Time       `json:"next_execution"`
	TotalExecutions int64           `json:"total_executions"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (p *Plan) Active() bool {
	return p.Status == PlanStatusActive
}

// TriggerID is the deterministic schedule registry key of the plan.
func (p *Plan) TriggerID() string {
	return TriggerIDFor(p.ID)
}

type CreatePlanRequest struct {
	WalletID  string          `json:"wallet_id" validate:"required"`
	FromAsset string          `json:"from_token" validate:"required"`
	ToAsset   string          `json:"to_token" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Cadence   Cadence         `json:"frequency" validate:"required"`
}

func (r CreatePlanRequest) Validate() error {
	if r.WalletID == "" || r.FromAsset == "" || r.ToAsset == "" || r.Amount.IsZero() || r.Cadence == "" {
		return NewValidationError(
			fmt.Errorf("missing required plan fields"),
			"wallet_id, from_token, to_token, amount, and frequency are required",
		)
	}
	if !r.Cadence.Valid() {
		return NewValidationError(
			fmt.Errorf("invalid cadence: %q", string(r.Cadence)),
			"Invalid frequency. Must be daily, weekly, or monthly",
		)
	}
	if !r.Amount.IsPositive() {
		return NewValidationError(
			fmt.Errorf("non-positive amount: %s", r.Amount.String()),
			"Amount must be greater than 0",
		)
	}
	return nil
}

// PlanUpdate carries the mutable plan attributes; nil fields are left as is.
type PlanUpdate struct {
	Status  *PlanStatus      `json:"status,omitempty"`
	Cadence *Cadence         `json:"frequency,omitempty"`
	Amount  *decimal.Decimal `json:"amount,omitempty"`
}

func (u PlanUpdate) Validate() error {
	if u.Status != nil {
		if _, err := ParsePlanStatus(string(*u.Status)); err != nil {
			return err
		}
	}
	if u.Cadence != nil && !u.Cadence.Valid() {
		return NewValidationError(
			fmt.Errorf("invalid cadence: %q", string(*u.Cadence)),
			"Invalid frequency. Must be daily, weekly, or monthly",
		)
	}
	if u.Amount != nil && !u.Amount.IsPositive() {
		return NewValidationError(
			fmt.Errorf("non-positive amount: %s", u.Amount.String()),
			"Amount must be greater than 0",
		)
	}
	return nil
}

func (u PlanUpdate) Empty() bool {
	return u.Status == nil && u.Cadence == nil && u.Amount == nil
}

// PlanExecution is one settled trade recorded against a plan.
type PlanExecution struct {
	ID         uuid.UUID       `json:"id"`
	PlanID     uuid.UUID       `json:"plan_id"`
	TradeID    string          `json:"trade_id"`
	TxHash     string          `json:"tx_hash,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	ExecutedAt time.Time       `json:"executed_at"`
}
