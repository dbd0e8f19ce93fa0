package memory

import "fmt"

type errorKind int

const (
	kindNotFound errorKind = iota + 1
	kindConflict
	kindInvalid
)

// Error implements repositories.RepositoryError for the in-memory store.
type Error struct {
	op   string
	msg  string
	kind errorKind
}

func (e *Error) Error() string { return fmt.Sprintf("memory.%s: %s", e.op, e.msg) }

func (e *Error) IsNotFound() bool    { return e.kind == kindNotFound }
func (e *Error) IsConflict() bool    { return e.kind == kindConflict }
func (e *Error) IsUnavailable() bool { return false }

func notFound(op, id string) error {
	return &Error{op: op, msg: fmt.Sprintf("%s not found", id), kind: kindNotFound}
}

func conflict(op, id string) error {
	return &Error{op: op, msg: fmt.Sprintf("%s already exists", id), kind: kindConflict}
}

func invalid(op, msg string) error {
	return &Error{op: op, msg: msg, kind: kindInvalid}
}
