package service

import "errors"

var (
	ErrValidation       = errors.New("validation failed")
	ErrInvalidRecipient = errors.New("invalid recipient")
	ErrForbidden        = errors.New("forbidden")
	ErrMessageNotFound  = errors.New("message not found")
	ErrUserNotFound     = errors.New("user not found")
)

// Error codes shared by the HTTP and WebSocket surfaces
const (
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeInvalidRecipient = "INVALID_RECIPIENT"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeNotFound         = "NOT_FOUND"
	CodeInternal         = "INTERNAL"
)

// ErrorCode classifies err into one of the error codes
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return CodeInvalidArgument
	case errors.Is(err, ErrInvalidRecipient):
		return CodeInvalidRecipient
	case errors.Is(err, ErrForbidden):
		return CodePermissionDenied
	case errors.Is(err, ErrMessageNotFound), errors.Is(err, ErrUserNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}
