// Package xerrors creates and wraps errors while recording where they
// came from. Wrapped errors stay compatible with errors.Is/As; the
// captured program counters are consumed by the log package to emit
// stack traces and error-site links.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }
func (s *stacked) IsXerrorsWrapper()   {}

type annotated struct {
	err error
	msg string
	pc  uintptr
}

func (a *annotated) Error() string     { return a.msg + ": " + a.err.Error() }
func (a *annotated) Unwrap() error     { return a.err }
func (a *annotated) PC() uintptr       { return a.pc }
func (a *annotated) IsXerrorsWrapper() {}

func capturePCs(skip int) []uintptr {
	const maxDepth = 64
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(2+skip, pcs) // skip runtime.Callers + capturePCs
	return pcs[:n]
}

func siteOf(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(2+skip, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

func stack(err error, skip int) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: capturePCs(skip)}
}

// New returns a new error carrying a stack trace from the call site.
func New(msg string) error { return stack(errors.New(msg), 2) }

// Newf is New with formatting. %w verbs are honored via fmt.Errorf.
func Newf(format string, args ...any) error {
	return stack(fmt.Errorf(format, args...), 2)
}

// Wrap annotates err with msg and the wrapping call site. Returns nil
// when err is nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: msg, pc: siteOf(1)}
}

// Wrapf is Wrap with formatting.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: fmt.Sprintf(format, args...), pc: siteOf(1)}
}

// WithStack attaches a stack trace to err without changing its message.
func WithStack(err error) error { return stack(err, 2) }

// EnsureTrace attaches a stack trace unless one is already present
// somewhere in the chain.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	type hasStack interface{ StackPCs() []uintptr }
	var hs hasStack
	if errors.As(err, &hs) && hs != nil && len(hs.StackPCs()) > 0 {
		return err
	}
	return stack(err, 2)
}
