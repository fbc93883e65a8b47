package fault

import "errors"

// Category classifies a failure by where it originated.
type Category string

const (
	Validation   Category = "validation"
	Precondition Category = "precondition"
	Transport    Category = "transport"
	Remote       Category = "remote"
	Malformed    Category = "malformed"
)

// Error is a categorised failure whose Message is ready to be shown to a user.
type Error struct {
	Category Category
	Message  string
	Err      error
}

func New(category Category, msg string) *Error {
	return &Error{Category: category, Message: msg}
}

func Wrap(category Category, msg string, err error) *Error {
	return &Error{Category: category, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// From returns err as an *Error. Uncategorised errors are wrapped with the
// fallback category and message.
func From(err error, fallback Category, msg string) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return Wrap(fallback, msg, err)
}

// CategoryOf reports the category of err, or the empty category when err is
// not a fault.
func CategoryOf(err error) Category {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Category
	}
	return ""
}
