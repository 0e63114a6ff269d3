package protocol

import "errors"

// Engine error codes.
const (
	ErrConnectionFailed   = "E_CONNECTION_FAILED"
	ErrNotRunning         = "E_NOT_RUNNING"
	ErrEntityUnavailable  = "E_ENTITY_UNAVAILABLE"
	ErrInvalidCoordinates = "E_INVALID_COORDINATES"
	ErrUnrecoverable      = "E_UNRECOVERABLE"
)

var knownCodes = map[string]struct{}{
	ErrConnectionFailed:   {},
	ErrNotRunning:         {},
	ErrEntityUnavailable:  {},
	ErrInvalidCoordinates: {},
	ErrUnrecoverable:      {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}

// Error carries an engine error code across package boundaries. BotID is set
// when the failure is scoped to a single bot.
type Error struct {
	Code    string
	Message string
	BotID   string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func NewError(code, botID, message string) *Error {
	return &Error{Code: code, BotID: botID, Message: message}
}

// CodeOf returns the engine code of err, or "" for plain errors.
func CodeOf(err error) string {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
