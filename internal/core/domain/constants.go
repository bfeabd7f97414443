package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownGuild       = errors.New("unknown guild")
	ErrNoGuild            = errors.New("payload has no guild")
	ErrDuplicateGuild     = errors.New("guild already handled")
	ErrUnsupportedCommand = errors.New("unsupported command")
	ErrInvalidArguments   = errors.New("invalid arguments")
	ErrCloseTimeout       = errors.New("guild handler did not stop in time")
	ErrSourcesExhausted   = errors.New("event mailbox and close tasks both exhausted")
	ErrMailboxClosed      = errors.New("mailbox closed")
	ErrSendingReplyFailed = errors.New("failed to send reply")
)

type FailureKind string

const (
	FailureError   FailureKind = "error"
	FailureWarning FailureKind = "warning"
	FailureInfo    FailureKind = "info"
)

// CommandError is a failure that is reported back to the requester. Response is the only part
// the requester sees; LogMessage and Err stay in the logs.
type CommandError struct {
	Response   string
	Kind       FailureKind
	LogMessage string
	Err        error
}

func (e *CommandError) Error() string {
	if e.LogMessage != "" {
		return fmt.Sprintf("%s: %s", e.Response, e.LogMessage)
	}

	return e.Response
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Unsupported builds the terminal dispatch miss for the given kind of request.
func Unsupported(what string) *CommandError {
	return &CommandError{
		Response: fmt.Sprintf("Unsupported %s", what),
		Kind:     FailureError,
		Err:      ErrUnsupportedCommand,
	}
}

// AsCommandError returns err as a CommandError, wrapping foreign errors into a generic failure so
// their text never reaches the requester.
func AsCommandError(err error) *CommandError {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr
	}

	return &CommandError{
		Response:   "Something went wrong",
		Kind:       FailureError,
		LogMessage: err.Error(),
		Err:        err,
	}
}
