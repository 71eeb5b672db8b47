package database

import (
	"errors"
	"sync/atomic"
)

// ErrOffline is returned by store-facing code that refused to run because the
// store is unreachable.
var ErrOffline = errors.New("database offline")

type State int32

const (
	StateOffline State = iota
	StateOnline
)

func (s State) String() string {
	if s == StateOnline {
		return "ONLINE"
	}
	return "OFFLINE"
}

// StateReporter reports whether the store is reachable. Services consult it
// before every store call and degrade to no-ops while OFFLINE.
type StateReporter interface {
	State() State
}

// StateFunc adapts a function to StateReporter.
type StateFunc func() State

func (f StateFunc) State() State { return f() }

// Always returns a reporter fixed at s.
func Always(s State) StateReporter {
	return StateFunc(func() State { return s })
}

// Switch is a StateReporter that can be flipped at runtime.
type Switch struct {
	v atomic.Int32
}

func NewSwitch(initial State) *Switch {
	s := &Switch{}
	s.v.Store(int32(initial))
	return s
}

func (s *Switch) State() State { return State(s.v.Load()) }

// Set stores next and reports whether it differs from the previous state.
func (s *Switch) Set(next State) bool {
	return State(s.v.Swap(int32(next))) != next
}

func Online(r StateReporter) bool {
	return r != nil && r.State() == StateOnline
}
