package classroom

import "time"

// Timer is a cancellable deferred task
type Timer interface {
	Stop() bool
}

// Timers creates deferred tasks; tests swap in a manual clock
type Timers interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realTimers struct{}

func (realTimers) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// slot names a kind of deferred task; scheduling replaces the slot's pending task
type slot string

const (
	slotCommand  slot = "command"
	slotFeedback slot = "feedback"
)

type deferred struct {
	gen   uint64
	timer Timer
}

type firing struct {
	slot slot
	gen  uint64
	fn   func()
}
