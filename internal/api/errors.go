package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed backend call.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindAuth
	KindNotFound
	KindConflict
	KindNetwork
	KindServer
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is the single shape every backend failure is normalized into.
type Error struct {
	Kind    Kind
	Status  int
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (%d): %s", e.Op, e.Kind, e.Status, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// UserMessage returns the text shown to the user for this failure.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return defaultMessage(e.Kind)
}

func defaultMessage(k Kind) string {
	switch k {
	case KindAuth:
		return "Your session has expired. Please sign in again."
	case KindNotFound:
		return "The requested item was not found."
	case KindConflict:
		return "That record already exists."
	case KindNetwork:
		return "Network error occurred. Please check if the server is running."
	case KindServer:
		return "The server encountered an error. Please try again later."
	case KindDecode:
		return "Invalid response from server. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}

// kindForStatus maps an HTTP status to a Kind.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusConflict:
		return KindConflict
	case status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// KindOf returns the Kind of err, or KindUnknown when err did not come
// from the client.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// IsAuthError reports whether err (or any error in its chain) is a
// rejected or expired credential.
func IsAuthError(err error) bool {
	return KindOf(err) == KindAuth
}

// IsNotFound reports whether the backend said the resource is missing.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// UserMessage converts any error into the single string shown to the
// user. Errors that carry their own user text (API and validation
// errors) are shown verbatim.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	if errors.Is(err, context.Canceled) {
		return "Request cancelled."
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The server took too long to respond."
	}
	return defaultMessage(KindUnknown)
}
