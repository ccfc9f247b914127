package types

import (
	"errors"
	"net/http"
	"strings"
)

type Kind int

const (
	KindTransient Kind = iota
	KindNotFound
	KindNotActive
	KindInsufficientFunds
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindNotActive:
		return "not_active"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindValidation:
		return "validation"
	default:
		return "transient"
	}
}

var (
	insufficientFundsKeywords = []string{"insufficient", "balance", "not enough funds"}
	validationKeywords        = []string{"required", "missing field", "invalid", "not valid", "incorrect format"}
	notFoundKeywords          = []string{"not found"}
)

// Classify maps any error to a Kind. Typed errors win; the keyword match is a
// fallback for collaborators that only report failures as text.
func Classify(err error) Kind {
	if err == nil {
		return KindTransient
	}

	var validationErr *ValidationError
	var execErr *ExecutionError
	switch {
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.As(err, &execErr) && execErr.Status == PlanStatusInsufficientFunds:
		return KindInsufficientFunds
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrNotActive):
		return KindNotActive
	}

	return classifyByKeyword(err.Error())
}

func classifyByKeyword(msg string) Kind {
	msg = strings.ToLower(msg)
	switch {
	case containsAny(msg, validationKeywords):
		return KindValidation
	case containsAny(msg, insufficientFundsKeywords):
		return KindInsufficientFunds
	case containsAny(msg, notFoundKeywords):
		return KindNotFound
	default:
		return KindTransient
	}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// IsInsufficientFunds reports whether err forecloses further trade attempts.
// Unlike Classify it ignores validation keywords, so "insufficient balance,
// required 10" still counts as a funds failure.
func IsInsufficientFunds(err error) bool {
	if err == nil {
		return false
	}
	if Classify(err) == KindInsufficientFunds {
		return true
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return false
	}
	return containsAny(strings.ToLower(err.Error()), insufficientFundsKeywords)
}

func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindInsufficientFunds:
		return http.StatusPaymentRequired
	case KindNotFound:
		return http.StatusNotFound
	case KindNotActive:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
