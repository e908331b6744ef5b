package model

import (
	"errors"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// Error taxonomy shared by every manager. Callers match with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrValidationFailed  = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid phase transition")
	ErrStorage           = errors.New("storage error")
	ErrVersionConflict   = errors.New("version conflict")
	ErrSessionExpired    = errors.New("session expired")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// ValidationError carries every rule a handover violated
type ValidationError struct {
	StoryFileID string
	Errors      []string
}

func (e *ValidationError) Error() string {
	return "handover validation failed: " + strings.Join(e.Errors, "; ")
}

// Is lets errors.Is(err, ErrValidationFailed) match
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// NewValidationError copies the error list so later mutation by the caller is harmless
func NewValidationError(storyFileID string, errs []string) *ValidationError {
	return &ValidationError{
		StoryFileID: storyFileID,
		Errors:      append([]string(nil), errs...),
	}
}

// NotFound wraps ErrNotFound with the entity kind and id
func NotFound(kind, id string) error {
	return goerr.Wrap(ErrNotFound, kind+" not found", goerr.V("kind", kind), goerr.V("id", id))
}

// InvalidTransition names both ends of a rejected phase change
func InvalidTransition(from, to Phase) error {
	return goerr.Wrap(ErrInvalidTransition,
		"cannot transition from "+from.String()+" to "+to.String(),
		goerr.V("from", from), goerr.V("to", to))
}

// InvalidArgument reports bad caller input
func InvalidArgument(msg string, options ...goerr.Option) error {
	return goerr.Wrap(ErrInvalidArgument, msg, options...)
}

// StorageError tags a store failure; the original error stays in the chain
func StorageError(err error, msg string, options ...goerr.Option) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStorage) {
		return err
	}
	return goerr.Wrap(&storageError{cause: err}, msg, options...)
}

type storageError struct {
	cause error
}

func (e *storageError) Error() string { return e.cause.Error() }

func (e *storageError) Unwrap() []error { return []error{ErrStorage, e.cause} }
