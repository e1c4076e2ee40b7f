package common

import "fmt"

type ErrorCode string

const (
	CodeInvalidArgument   ErrorCode = "INVALID_ARGUMENT"
	CodeUnknownRecipient  ErrorCode = "UNKNOWN_RECIPIENT"
	CodeNotAuthorized     ErrorCode = "NOT_AUTHORIZED"
	CodeRecipientOffline  ErrorCode = "RECIPIENT_OFFLINE"
	CodeRecipientBusy     ErrorCode = "RECIPIENT_BUSY"
	CodeCallNotFound      ErrorCode = "CALL_NOT_FOUND"
	CodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodePersistence       ErrorCode = "PERSISTENCE"
)

// DomainError carries a stable code the HTTP layer maps to a status.
type DomainError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Cause }

func NewError(code ErrorCode, message string) error {
	return &DomainError{Code: code, Message: message}
}

func WrapError(code ErrorCode, message string, cause error) error {
	return &DomainError{Code: code, Message: message, Cause: cause}
}

func InvalidArgument(msg string) error { return NewError(CodeInvalidArgument, msg) }

func UnknownRecipient(userID string) error {
	return NewError(CodeUnknownRecipient, fmt.Sprintf("unknown recipient: %s", userID))
}

func NotAuthorized(msg string) error { return NewError(CodeNotAuthorized, msg) }

func RecipientOffline(userID string) error {
	return NewError(CodeRecipientOffline, fmt.Sprintf("recipient is offline: %s", userID))
}

func RecipientBusy(userID string) error {
	return NewError(CodeRecipientBusy, fmt.Sprintf("user already has a call in progress: %s", userID))
}

func CallNotFound(channelID string) error {
	return NewError(CodeCallNotFound, fmt.Sprintf("call not found: %s", channelID))
}

func InvalidTransition(msg string) error { return NewError(CodeInvalidTransition, msg) }

func PersistenceFailure(msg string, cause error) error {
	return WrapError(CodePersistence, msg, cause)
}

// CodeOf extracts the domain code from err, walking the wrap chain.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if de, ok := err.(*DomainError); ok {
			return de.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return "UNKNOWN"
}
