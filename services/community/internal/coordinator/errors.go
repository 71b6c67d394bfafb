package coordinator

import (
	"errors"
	"fmt"
)

// Kind classifies a coordinator failure for the transport layer.
type Kind int

const (
	KindInternal Kind = iota
	KindBadRequest
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error is returned by every Coordinator operation that fails.
// Code is a stable machine readable identifier, Message is safe to show.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, KindInternal when err is not an *Error.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

func badRequest(code, msg string) *Error {
	return &Error{Kind: KindBadRequest, Code: code, Message: msg}
}

func notFound(code, msg string, err error) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: msg, Err: err}
}

func conflict(code, msg string, err error) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: msg, Err: err}
}

func internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "INTERNAL", Message: "internal error", Err: err}
}

// Stable error codes.
const (
	CodeMissingUserID   = "MISSING_USER_ID"
	CodeMissingIDs      = "MISSING_IDS"
	CodeEmptyContent    = "EMPTY_CONTENT"
	CodeContentTooLong  = "CONTENT_TOO_LONG"
	CodeUserNotFound    = "USER_NOT_FOUND"
	CodePostingNotFound = "POSTING_NOT_FOUND"
	CodeCommentNotFound = "COMMENT_NOT_FOUND"
	CodeLikeNotFound    = "LIKE_NOT_FOUND"
	CodeAlreadyLiked    = "ALREADY_LIKED"
)
