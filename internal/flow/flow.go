// Package flow is the purchase flow state machine. It knows nothing about
// transports or wallets; callers feed it events and read back the state.
package flow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/alanyoungcy/policast/internal/domain"
)

// State is a step of the purchase flow.
type State string

const (
	Idle           State = "idle"
	AmountEntry    State = "amount_entry"
	Approving      State = "approving"
	Confirming     State = "confirming"
	PartialSuccess State = "partial_success"
	Success        State = "success"
)

// Event drives a transition.
type Event string

const (
	Select             Event = "select"
	Cancel             Event = "cancel"
	SubmitWithApproval Event = "submit_with_approval"
	SubmitDirect       Event = "submit_direct"
	ApprovalConfirmed  Event = "approval_confirmed"
	Succeed            Event = "succeed"
	PartialFail        Event = "partial_fail"
	Fail               Event = "fail"
	Retry              Event = "retry"
	Reset              Event = "reset"
)

// ErrInvalidTransition is returned for an event the current state does not
// accept.
var ErrInvalidTransition = errors.New("flow: invalid transition")

var transitions = map[State]map[Event]State{
	Idle: {
		Select: AmountEntry,
	},
	AmountEntry: {
		Select:             AmountEntry,
		Cancel:             Idle,
		SubmitWithApproval: Approving,
		SubmitDirect:       Confirming,
		Fail:               Idle,
	},
	Approving: {
		ApprovalConfirmed: Confirming,
		Succeed:           Success,
		PartialFail:       PartialSuccess,
		Fail:              Idle,
	},
	Confirming: {
		Succeed:     Success,
		PartialFail: PartialSuccess,
		Fail:        Idle,
	},
	PartialSuccess: {
		Retry: Confirming,
		Reset: Idle,
	},
	Success: {
		Reset: Idle,
	},
}

// Machine tracks one purchase flow. It is safe for concurrent use.
type Machine struct {
	mu      sync.Mutex
	state   State
	intent  *domain.PurchaseIntent
	lastErr error
	history []State
}

// New returns a machine in Idle.
func New() *Machine {
	return &Machine{state: Idle, history: []State{Idle}}
}

// Restore rebuilds a machine for a flow persisted in PartialSuccess so its
// action can be retried. Any other state yields a fresh Idle machine.
func Restore(state State, intent *domain.PurchaseIntent) *Machine {
	if state != PartialSuccess {
		return New()
	}
	return &Machine{state: PartialSuccess, intent: intent, history: []State{PartialSuccess}}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Intent returns the intent carried by the flow, if any.
func (m *Machine) Intent() *domain.PurchaseIntent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.intent
}

// Err returns the error recorded by the last Fail.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// History returns every state the machine has been in, oldest first.
func (m *Machine) History() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]State, len(m.history))
	copy(out, m.history)
	return out
}

// Submitted reports whether the flow has handed calls to the wallet, after
// which it can no longer be cancelled.
func (m *Machine) Submitted() bool {
	s := m.State()
	return s == Approving || s == Confirming || s == PartialSuccess
}

// Fire applies ev. It returns ErrInvalidTransition, leaving the state
// unchanged, when the current state does not accept ev.
func (m *Machine) Fire(ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fire(ev)
}

func (m *Machine) fire(ev Event) error {
	next, ok := transitions[m.state][ev]
	if !ok {
		return fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, m.state)
	}
	if ev == Select {
		m.lastErr = nil
	}
	// The intent survives a partial success so the action can be retried.
	if next == Idle {
		m.intent = nil
	}
	m.state = next
	m.history = append(m.history, next)
	return nil
}

// SetIntent attaches the intent being built. It is only accepted while the
// user is entering an amount.
func (m *Machine) SetIntent(intent domain.PurchaseIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != AmountEntry {
		return fmt.Errorf("%w: set intent in %s", ErrInvalidTransition, m.state)
	}
	m.intent = &intent
	return nil
}

// FailWith fires Fail and records err.
func (m *Machine) FailWith(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ferr := m.fire(Fail); ferr != nil {
		return ferr
	}
	m.lastErr = err
	return nil
}
