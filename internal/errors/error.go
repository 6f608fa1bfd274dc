// Package errors provides the coded, actionable errors the viewcore command
// reports.
//
// Each code maps to a registered template with a category, a short message
// and a longer explanation:
//
//	err := errors.New("VC101").
//	    WithDetail("server.port must be between 0 and 65535").
//	    WithSuggestion("Set server.port in viewcore.json")
//
//	errors.PrintError(os.Stderr, err)
//	// ERROR VC101: Invalid configuration
//	//
//	//   server.port must be between 0 and 65535
//	//
//	//   Hint: Set server.port in viewcore.json
package errors

import "errors"

// Category groups error codes.
type Category string

const (
	CategoryConfig  Category = "config"
	CategoryServe   Category = "serve"
	CategoryJournal Category = "journal"
	CategoryCLI     Category = "cli"
)

// ViewcoreError is a coded error with an optional explanation and fix hint.
type ViewcoreError struct {
	// Code is a unique identifier such as "VC100".
	Code string

	Category Category

	// Message is a short description.
	Message string

	// Detail explains what went wrong in this instance.
	Detail string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *ViewcoreError) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

// Unwrap returns the wrapped error.
func (e *ViewcoreError) Unwrap() error {
	return e.Wrapped
}

// WithDetail sets Detail.
func (e *ViewcoreError) WithDetail(d string) *ViewcoreError {
	e.Detail = d
	return e
}

// WithSuggestion sets Suggestion.
func (e *ViewcoreError) WithSuggestion(s string) *ViewcoreError {
	e.Suggestion = s
	return e
}

// Wrap sets the underlying error.
func (e *ViewcoreError) Wrap(err error) *ViewcoreError {
	e.Wrapped = err
	return e
}

// New creates an error from a registered code. Unknown codes yield an
// "Unknown error" message.
func New(code string) *ViewcoreError {
	t, ok := registry[code]
	if !ok {
		return &ViewcoreError{Code: code, Message: "Unknown error"}
	}
	return &ViewcoreError{
		Code:     code,
		Category: t.Category,
		Message:  t.Message,
		Detail:   t.Detail,
	}
}

// FromError returns err if it already is a *ViewcoreError, and otherwise
// wraps it under code.
func FromError(err error, code string) *ViewcoreError {
	if err == nil {
		return nil
	}
	var ve *ViewcoreError
	if errors.As(err, &ve) {
		return ve
	}
	return New(code).Wrap(err)
}

// HasCode reports whether err is a *ViewcoreError with the given code.
func HasCode(err error, code string) bool {
	var ve *ViewcoreError
	return errors.As(err, &ve) && ve.Code == code
}
