// Package context aliases the standard library context so that call sites read
// as context.T, and adds the default-deadline helper used by every blocking
// network operation.
package context

import (
	"context"
	"time"
)

type (
	T = context.Context
	F = context.CancelFunc
	C = context.CancelCauseFunc
)

var (
	Bg               = context.Background
	Cancel           = context.WithCancel
	Timeout          = context.WithTimeout
	TODO             = context.TODO
	Value            = context.WithValue
	CancelCause      = context.WithCancelCause
	AfterFunc        = context.AfterFunc
	Cause            = context.Cause
	Canceled         = context.Canceled
	DeadlineExceeded = context.DeadlineExceeded
)

// Default returns c unchanged with a no-op cancel if it already carries a
// deadline, otherwise it derives a child that expires after d.
func Default(c T, d time.Duration) (T, F) {
	if _, ok := c.Deadline(); ok || d <= 0 {
		return c, func() {}
	}
	return context.WithTimeout(c, d)
}
