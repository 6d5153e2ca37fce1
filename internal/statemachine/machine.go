// Package statemachine holds the per-variant transition tables and the pure
// decision function that every writer consults before mutating a transfer.
package statemachine

import (
	"fmt"
	"slices"

	"github.com/josh-kwaku/anchor-gateway/internal/domain"
)

type Outcome int

const (
	Rejected Outcome = iota
	Applied
	NoOp
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case NoOp:
		return "noop"
	}
	return "rejected"
}

// Decision is the result of evaluating an action. Next is only meaningful for
// Applied, Reason only for Rejected.
type Decision struct {
	Outcome Outcome
	Next    domain.Status
	Reason  error
}

func applied(next domain.Status) Decision { return Decision{Outcome: Applied, Next: next} }
func noop(cur domain.Status) Decision     { return Decision{Outcome: NoOp, Next: cur} }
func rejected(err error) Decision         { return Decision{Outcome: Rejected, Reason: err} }

// Transition describes one action within a variant. Alt lists targets other
// than To that a handler may pick based on the action's payload.
type Transition struct {
	From []domain.Status
	To   domain.Status
	Alt  []domain.Status
}

type Table map[domain.Action]Transition

type Machine struct {
	tables map[domain.Variant]Table
}

func New() *Machine {
	return &Machine{tables: defaultTables()}
}

// NewWithTables builds a machine over custom tables. Terminal statuses in any
// From set are rejected so that the terminal-state rule cannot be bypassed.
func NewWithTables(tables map[domain.Variant]Table) (*Machine, error) {
	for v, table := range tables {
		for action, tr := range table {
			for _, from := range tr.From {
				if from.IsTerminal() {
					return nil, fmt.Errorf("NewWithTables: %s/%s lists terminal status %s as source", v, action, from)
				}
			}
		}
	}
	return &Machine{tables: tables}, nil
}

// Decide is a pure lookup over (variant, current status, action).
func (m *Machine) Decide(variant domain.Variant, current domain.Status, action domain.Action) Decision {
	table, ok := m.tables[variant]
	if !ok {
		return rejected(fmt.Errorf("variant %q: %w", variant, domain.ErrUnknownAction))
	}
	tr, ok := table[action]
	if !ok {
		return rejected(fmt.Errorf("action %q not supported for %s: %w", action, variant, domain.ErrUnknownAction))
	}

	if slices.Contains(tr.From, current) {
		return applied(tr.To)
	}

	// at-least-once delivery: a replay that lands on the current status is not an error
	if current == tr.To || (current.IsTerminal() && slices.Contains(tr.Alt, current)) {
		return noop(current)
	}

	if current.IsTerminal() {
		return rejected(fmt.Errorf("action %q in status %s: %w: %w", action, current, domain.ErrInvalidTransition, domain.ErrTerminalStatus))
	}
	return rejected(fmt.Errorf("action %q not allowed in status %s for %s: %w", action, current, variant, domain.ErrInvalidTransition))
}

// Allows reports whether target is a legal destination of action for the variant.
func (m *Machine) Allows(variant domain.Variant, action domain.Action, target domain.Status) bool {
	tr, ok := m.tables[variant][action]
	if !ok {
		return false
	}
	return tr.To == target || slices.Contains(tr.Alt, target)
}

func (m *Machine) Actions(variant domain.Variant) []domain.Action {
	table := m.tables[variant]
	actions := make([]domain.Action, 0, len(table))
	for a := range table {
		actions = append(actions, a)
	}
	slices.Sort(actions)
	return actions
}

// Transition exposes the table entry, mainly for handlers that need the alternates.
func (m *Machine) Transition(variant domain.Variant, action domain.Action) (Transition, bool) {
	tr, ok := m.tables[variant][action]
	return tr, ok
}
