// Package sink is the boundary the proposal executor reaches external
// effects through: external calls routed to a registered runtime and value
// transfers routed to a balance ledger.
package sink

import "context"

// ActionSink executes the side-effecting half of proposal actions. Both
// operations report failure synchronously; the executor rejects the
// triggering action as a unit on any error.
type ActionSink interface {
	// Call invokes the external target with an opaque payload and attached
	// value.
	Call(ctx context.Context, target string, payload []byte, value uint64) error
	// Transfer moves amount to recipient.
	Transfer(ctx context.Context, recipient string, amount uint64) error
}

// Composite splits Call and Transfer across two implementations, letting a
// WASM runner serve calls while a ledger serves transfers.
type Composite struct {
	Caller      ActionSink
	Transferrer ActionSink
}

// Call implements ActionSink.
func (c Composite) Call(ctx context.Context, target string, payload []byte, value uint64) error {
	return c.Caller.Call(ctx, target, payload, value)
}

// Transfer implements ActionSink.
func (c Composite) Transfer(ctx context.Context, recipient string, amount uint64) error {
	return c.Transferrer.Transfer(ctx, recipient, amount)
}
