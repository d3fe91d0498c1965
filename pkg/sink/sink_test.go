package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerTransfer(t *testing.T) {
	l := NewLedger("treasury", 100)
	ctx := context.Background()

	require.NoError(t, l.Transfer(ctx, "alice", 40))
	assert.Equal(t, uint64(60), l.BalanceOf("treasury"))
	assert.Equal(t, uint64(40), l.BalanceOf("alice"))
}

func TestLedgerTransferInsufficient(t *testing.T) {
	l := NewLedger("treasury", 10)
	err := l.Transfer(context.Background(), "alice", 11)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, uint64(10), l.BalanceOf("treasury"))
	assert.Equal(t, uint64(0), l.BalanceOf("alice"))
}

func TestLedgerCallRoutesToHandler(t *testing.T) {
	l := NewLedger("treasury", 0)
	var gotPayload []byte
	var gotValue uint64
	l.RegisterHandler("vault", func(_ context.Context, payload []byte, value uint64) error {
		gotPayload = payload
		gotValue = value
		return nil
	})

	require.NoError(t, l.Call(context.Background(), "vault", []byte{1, 2, 3, 4}, 9))
	assert.Equal(t, []byte{1, 2, 3, 4}, gotPayload)
	assert.Equal(t, uint64(9), gotValue)
}

func TestLedgerCallUnknownTarget(t *testing.T) {
	l := NewLedger("treasury", 0)
	err := l.Call(context.Background(), "nowhere", nil, 0)
	assert.ErrorIs(t, err, ErrUnknownTarget)
}

func TestLedgerCallPropagatesHandlerError(t *testing.T) {
	l := NewLedger("treasury", 0)
	boom := errors.New("boom")
	l.RegisterHandler("vault", func(context.Context, []byte, uint64) error { return boom })
	assert.ErrorIs(t, l.Call(context.Background(), "vault", nil, 0), boom)
}

func TestCompositeRouting(t *testing.T) {
	ledger := NewLedger("treasury", 50)
	calls := NewLedger("unused", 0)
	calls.RegisterHandler("svc", func(context.Context, []byte, uint64) error { return nil })

	c := Composite{Caller: calls, Transferrer: ledger}
	require.NoError(t, c.Call(context.Background(), "svc", nil, 0))
	require.NoError(t, c.Transfer(context.Background(), "bob", 20))
	assert.Equal(t, uint64(20), ledger.BalanceOf("bob"))
}

func TestWasmRunnerUnknownTarget(t *testing.T) {
	ctx := context.Background()
	w := NewWasmRunner(ctx, time.Second)
	t.Cleanup(func() { _ = w.Close(ctx) })

	err := w.Call(ctx, "missing", []byte("payload"), 0)
	assert.ErrorIs(t, err, ErrUnknownTarget)
}

func TestWasmRunnerRejectsGarbageModule(t *testing.T) {
	ctx := context.Background()
	w := NewWasmRunner(ctx, time.Second)
	t.Cleanup(func() { _ = w.Close(ctx) })

	w.RegisterModule("bad", []byte("not wasm"))
	err := w.Call(ctx, "bad", nil, 0)
	assert.Error(t, err)
}

func TestWasmRunnerDoesNotTransfer(t *testing.T) {
	ctx := context.Background()
	w := NewWasmRunner(ctx, time.Second)
	t.Cleanup(func() { _ = w.Close(ctx) })

	assert.Error(t, w.Transfer(ctx, "alice", 1))
}
