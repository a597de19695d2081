package serverutils

import "github.com/gofiber/fiber/v2"

// AppError is the error taxonomy surfaced to clients. Validation and
// closed-conversation errors are terminal for the single operation and are
// reported only to the originating channel; they never become room
// broadcasts.
type AppError struct {
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

const (
	KindValidation         = "validation_error"
	KindNotFound           = "not_found"
	KindConversationClosed = "conversation_closed"
)

func NewValidationError(message string) *AppError {
	return &AppError{Code: fiber.StatusBadRequest, Kind: KindValidation, Message: message}
}

func NewNotFoundError(message string) *AppError {
	return &AppError{Code: fiber.StatusNotFound, Kind: KindNotFound, Message: message}
}

func NewConversationClosedError(message string) *AppError {
	return &AppError{Code: fiber.StatusConflict, Kind: KindConversationClosed, Message: message}
}
