package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindTransient},
		{"typed validation", NewValidationError(errors.New("x"), "bad"), KindValidation},
		{"wrapped funds", fmt.Errorf("trade: %w", ErrInsufficientFunds), KindInsufficientFunds},
		{"wrapped not found", fmt.Errorf("plan 1: %w", ErrNotFound), KindNotFound},
		{"not active", fmt.Errorf("plan 1: %w", ErrNotActive), KindNotActive},
		{"funds execution error", &ExecutionError{PlanID: uuid.New(), Status: PlanStatusInsufficientFunds, Err: errors.New("empty")}, KindInsufficientFunds},
		{"keyword balance", errors.New("low balance on wallet"), KindInsufficientFunds},
		{"keyword not enough", errors.New("Not enough funds"), KindInsufficientFunds},
		{"keyword invalid", errors.New("invalid token address"), KindValidation},
		{"keyword required", errors.New("amount is required"), KindValidation},
		{"keyword not found", errors.New("wallet not found"), KindNotFound},
		{"unknown", errors.New("connection reset by peer"), KindTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestIsInsufficientFunds(t *testing.T) {
	require.False(t, IsInsufficientFunds(nil))
	require.True(t, IsInsufficientFunds(ErrInsufficientFunds))
	require.True(t, IsInsufficientFunds(errors.New("insufficient balance, required 10")))
	require.False(t, IsInsufficientFunds(NewValidationError(errors.New("invalid balance field"), "bad")))
	require.False(t, IsInsufficientFunds(errors.New("timeout")))
}

func TestKind(t *testing.T) {
	require.Equal(t, "transient", KindTransient.String())
	require.Equal(t, "insufficient_funds", KindInsufficientFunds.String())

	require.Equal(t, http.StatusBadRequest, HTTPStatus(KindValidation))
	require.Equal(t, http.StatusPaymentRequired, HTTPStatus(KindInsufficientFunds))
	require.Equal(t, http.StatusNotFound, HTTPStatus(KindNotFound))
	require.Equal(t, http.StatusConflict, HTTPStatus(KindNotActive))
	require.Equal(t, http.StatusInternalServerError, HTTPStatus(KindTransient))
}
