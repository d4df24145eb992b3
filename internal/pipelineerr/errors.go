// Package pipelineerr defines the error kinds surfaced by the training pipeline.
//
// Every failure that crosses a stage boundary is translated once into an *Error
// carrying its Kind, the operation that failed and the source location of the
// translation point. Callers branch with errors.Is against the Err* sentinels.
package pipelineerr

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
)

type Kind string

const (
	KindDataAccess    Kind = "data_access"
	KindModelLoad     Kind = "model_load"
	KindPublish       Kind = "publish"
	KindConfiguration Kind = "configuration"
)

var (
	ErrDataAccess    = errors.New("data access error")
	ErrModelLoad     = errors.New("model load error")
	ErrPublish       = errors.New("publish error")
	ErrConfiguration = errors.New("configuration error")
)

type Error struct {
	Kind     Kind
	Op       string
	Location string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Op)
	if e.Location != "" {
		msg += " (" + e.Location + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel belonging to the error's kind.
func (e *Error) Is(target error) bool {
	return target == sentinel(e.Kind)
}

func sentinel(k Kind) error {
	switch k {
	case KindDataAccess:
		return ErrDataAccess
	case KindModelLoad:
		return ErrModelLoad
	case KindPublish:
		return ErrPublish
	case KindConfiguration:
		return ErrConfiguration
	}
	return nil
}

func DataAccess(op string, err error) error    { return wrap(KindDataAccess, op, err) }
func ModelLoad(op string, err error) error     { return wrap(KindModelLoad, op, err) }
func Publish(op string, err error) error       { return wrap(KindPublish, op, err) }
func Configuration(op string, err error) error { return wrap(KindConfiguration, op, err) }

// wrap keeps an already classified error as is so the innermost kind and
// location survive re-wrapping at outer layers.
func wrap(kind Kind, op string, err error) error {
	var existing *Error
	if err != nil && errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: kind, Op: op, Location: caller(3), Err: err}
}

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

// KindOf reports the kind of the first classified error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
