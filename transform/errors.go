package transform

import (
	"errors"
	"fmt"
)

// Kind classifies a failed dispatch.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindParse             Kind = "parse"
	KindUnsupportedFormat Kind = "unsupported_format"
	KindNetwork           Kind = "network"
	KindTimeout           Kind = "timeout"
	KindRemote            Kind = "remote"
	KindProcessing        Kind = "processing"
	KindEmptyInput        Kind = "empty_input"
	KindInvalidInput      Kind = "invalid_input"
)

var userMessages = map[Kind]string{
	KindValidation:        "Some required information is missing or invalid.",
	KindParse:             "The file could not be read. It may be damaged or in an unexpected format.",
	KindUnsupportedFormat: "This file format is not supported by the selected tool.",
	KindNetwork:           "The AI service could not be reached. Check your connection and try again.",
	KindTimeout:           "The AI service took too long to answer. Please try again.",
	KindRemote:            "The AI service returned an error.",
	KindProcessing:        "Something went wrong while processing the file.",
	KindEmptyInput:        "There is nothing to convert.",
	KindInvalidInput:      "The input is empty or malformed.",
}

// UserMessage returns the category message shown next to the detailed error.
func (k Kind) UserMessage() string {
	if m, ok := userMessages[k]; ok {
		return m
	}
	return userMessages[KindProcessing]
}

// Error is the typed failure carried by an error Result.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Detail is the message surfaced to users: the specific message plus the
// underlying cause when there is one.
func (e *Error) Detail() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// NewError creates a typed error.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func ValidationError(message string) *Error {
	return NewError(KindValidation, message, nil)
}

func ParseError(message string, err error) *Error {
	return NewError(KindParse, message, err)
}

func UnsupportedFormatError(message string) *Error {
	return NewError(KindUnsupportedFormat, message, nil)
}

func ProcessingError(message string, err error) *Error {
	return NewError(KindProcessing, message, err)
}

func EmptyInputError(message string) *Error {
	return NewError(KindEmptyInput, message, nil)
}

func InvalidInputError(message string) *Error {
	return NewError(KindInvalidInput, message, nil)
}

// AsError extracts a *Error from err. Untyped errors become processing errors.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return ProcessingError("unexpected failure", err)
}

// IsKind reports whether err is a typed error of the given kind.
func IsKind(err error, kind Kind) bool {
	var te *Error
	return errors.As(err, &te) && te.Kind == kind
}
