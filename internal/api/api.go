package api

import "time"

type APIResponse[T any] struct {
	Data      T             `json:"data,omitempty"`
	Error     ErrorResponse `json:"error"`
	Status    int           `json:"status,omitempty"`
	Timestamp string        `json:"timestamp"`
	Version   string        `json:"version"`
}

type ErrorResponse struct {
	Message          string `json:"message"`
	DetailedResponse string `json:"details,omitempty"`
}

const (
	MsgMissingAuthHeader = "Missing authorization header"
	MsgInvalidAuthHeader = "Invalid authorization header format"
	MsgUnauthorized      = "Unauthorized"
	MsgInternalError     = "An internal error occurred"
	MsgInvalidRequest    = "Invalid request body"

	msgRequiredSipID    = "sip_id is required"
	msgInvalidSipID     = "Invalid sip_id"
	msgRequiredWalletID = "wallet_id is required"
	msgPlanNotFound     = "SIP not found"
	msgPlanNotActive    = "SIP is not active"
	msgNoFunds          = "Insufficient funds for SIP execution"
)

func NewErrorResponseWithMessage(message string) APIResponse[interface{}] {
	return APIResponse[interface{}]{
		Error: ErrorResponse{
			Message: message,
		},
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   "1.0.0",
	}
}

func NewErrorResponseWithDetails(message, details string) APIResponse[interface{}] {
	res := NewErrorResponseWithMessage(message)
	res.Error.DetailedResponse = details
	return res
}

func NewSuccessResponse[T any](code int, data T) APIResponse[T] {
	return APIResponse[T]{
		Status:    code,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   "1.0.0",
	}
}
