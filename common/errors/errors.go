// Package errors implements coded errors that carry a stable
// (module, code) pair across process boundaries.
package errors

import (
	"errors"
	"fmt"
	"sync"
)

// UnknownModule is the module name used when the module is unknown.
const UnknownModule = "unknown"

// CodeNoError is the reserved "no error" code.
const CodeNoError = 0

// Re-exports so this package can be used as a replacement for errors.
var (
	As     = errors.As
	Is     = errors.Is
	Unwrap = errors.Unwrap
)

var registeredErrors sync.Map

type codedError struct {
	module string
	code   uint32
	msg    string
}

func (e *codedError) Error() string {
	return e.msg
}

// Module returns the module that raised the error.
func (e *codedError) Module() string {
	return e.module
}

// Code returns the error's code within its module.
func (e *codedError) Code() uint32 {
	return e.code
}

type codedErrorWithContext struct {
	err     error
	context string
}

func (e *codedErrorWithContext) Error() string {
	return fmt.Sprintf("%v: %s", e.err, e.context)
}

func (e *codedErrorWithContext) Unwrap() error {
	return e.err
}

// WithContext creates a wrapped error that adds additional context.
func WithContext(err error, context string) error {
	if len(context) == 0 {
		return err
	}
	return &codedErrorWithContext{err: err, context: context}
}

// New creates and registers a new coded error.
//
// The (module, code) pair must be unique; New panics if it is not.
func New(module string, code uint32, msg string) error {
	if code == CodeNoError {
		panic(fmt.Errorf("errors: code reserved for 'no error': %d", CodeNoError))
	}

	e := &codedError{module: module, code: code, msg: msg}

	key := errorKey(module, code)
	if prev, isRegistered := registeredErrors.Load(key); isRegistered {
		panic(fmt.Errorf("errors: already registered: %s (existing: %s)", key, prev))
	}
	registeredErrors.Store(key, e)

	return e
}

// Code returns the module and code for err. A nil err yields ("",
// CodeNoError); an err that is not a coded error yields
// (UnknownModule, 1).
func Code(err error) (string, uint32) {
	if err == nil {
		return "", CodeNoError
	}
	var ce *codedError
	if !As(err, &ce) {
		return UnknownModule, 1
	}
	return ce.module, ce.code
}

func errorKey(module string, code uint32) string {
	return fmt.Sprintf("%s-%d", module, code)
}
