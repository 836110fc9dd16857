// Package guard enforces the write-time invariants of the clinic store:
// a doctor is never double-booked and nothing is deleted while other
// records still reference it.
//
// Guards report expected denials as an Outcome. The error return is
// reserved for infrastructure failures (store unreachable, context
// cancelled) and for errors raised by the caller's own commit function.
package guard

import (
	"context"
	"fmt"

	"github.com/clinicapi/clinic/internal/platform/apperr"
)

// Outcome is the result of a guard check.
type Outcome struct {
	OK     bool
	Code   apperr.Code
	Reason string
}

// Allow is the passing outcome.
func Allow() Outcome { return Outcome{OK: true} }

// Block builds a refusing outcome.
func Block(code apperr.Code, format string, args ...interface{}) Outcome {
	return Outcome{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Err converts a refusing outcome into an *apperr.Error. It returns nil for
// a passing outcome.
func (o Outcome) Err() error {
	if o.OK {
		return nil
	}
	return apperr.New(o.Code, "%s", o.Reason)
}

// Transactor runs fn inside one store transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
