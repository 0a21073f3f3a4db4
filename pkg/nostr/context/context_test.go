package context

import (
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	c, cancel := Default(Bg(), time.Second)
	defer cancel()
	dl, ok := c.Deadline()
	if !ok {
		t.Fatal("expected a deadline to be applied")
	}
	if time.Until(dl) > time.Second {
		t.Errorf("deadline too far away: %v", time.Until(dl))
	}
	parent, pcancel := Timeout(Bg(), time.Minute)
	defer pcancel()
	c2, cancel2 := Default(parent, time.Second)
	defer cancel2()
	if c2 != parent {
		t.Error("context with a deadline must be passed through")
	}
}
