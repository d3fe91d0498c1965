package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInsufficientFunds is returned when the source account cannot cover
	// a transfer.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrUnknownTarget is returned when a call names an unregistered target.
	ErrUnknownTarget = errors.New("unknown call target")
)

// CallHandler serves one registered external-call target.
type CallHandler func(ctx context.Context, payload []byte, value uint64) error

// Ledger is an in-memory ActionSink: balances for transfers and registered
// handlers for external calls. It backs tests and single-process
// deployments; production deployments swap in a transport-backed sink.
type Ledger struct {
	mu       sync.Mutex
	source   string
	balances map[string]uint64
	handlers map[string]CallHandler
}

// NewLedger creates a ledger funding transfers from the named source
// account with the given opening balance.
func NewLedger(source string, opening uint64) *Ledger {
	return &Ledger{
		source:   source,
		balances: map[string]uint64{source: opening},
		handlers: make(map[string]CallHandler),
	}
}

// RegisterHandler wires a call target.
func (l *Ledger) RegisterHandler(target string, handler CallHandler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[target] = handler
}

// Call implements ActionSink.
func (l *Ledger) Call(ctx context.Context, target string, payload []byte, value uint64) error {
	l.mu.Lock()
	handler, ok := l.handlers[target]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, target)
	}
	return handler(ctx, payload, value)
}

// Transfer implements ActionSink, debiting the source account.
func (l *Ledger) Transfer(_ context.Context, recipient string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[l.source] < amount {
		return fmt.Errorf("%w: need %d, have %d", ErrInsufficientFunds, amount, l.balances[l.source])
	}
	l.balances[l.source] -= amount
	l.balances[recipient] += amount
	return nil
}

// BalanceOf returns the current balance of an account.
func (l *Ledger) BalanceOf(account string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}
