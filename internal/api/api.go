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
	MsgInvalidRequest    = "Invalid request"
	MsgInvalidTxID       = "Invalid transaction id"
	MsgTxNotFound        = "Transaction not found"
	MsgInternalError     = "An internal error occurred"
	MsgShuttingDown      = "Server is shutting down"
	apiVersion           = "1.0.0"
)

func NewErrorResponseWithMessage(message string) APIResponse[any] {
	return APIResponse[any]{
		Error: ErrorResponse{
			Message: message,
		},
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   apiVersion,
	}
}

func NewErrorResponseWithDetails(message, details string) APIResponse[any] {
	resp := NewErrorResponseWithMessage(message)
	resp.Error.DetailedResponse = details
	return resp
}

func NewSuccessResponse[T any](code int, data T) APIResponse[T] {
	return APIResponse[T]{
		Status:    code,
		Data:      data,
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   apiVersion,
	}
}
