package timestamp

import (
	"time"
)

// T is a UNIX timestamp with one second precision.
type T int64

// Now returns the current UNIX timestamp of the current second.
func Now() T { return T(time.Now().Unix()) }

func (t T) I64() int64 { return int64(t) }

// Time converts a T into a time.Time.
func (t T) Time() time.Time { return time.Unix(int64(t), 0) }

// Ptr returns the address of a copy so values can register as unset with nil.
func (t T) Ptr() *T { return &t }

// FromUnix converts from a standard int64 unix timestamp.
func FromUnix(t int64) T { return T(t) }
