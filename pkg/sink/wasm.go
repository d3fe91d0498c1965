package sink

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// WasmRunner executes external-call payloads inside a wazero WASI sandbox.
// Deny-by-default: no filesystem, no network, no environment. Each call
// target maps to a registered WASM module; the call payload reaches the
// module via stdin with the attached value prepended big-endian.
type WasmRunner struct {
	mu      sync.Mutex
	runtime wazero.Runtime
	modules map[string][]byte
	timeout time.Duration
}

// NewWasmRunner creates a runner with the given per-call execution timeout.
func NewWasmRunner(ctx context.Context, timeout time.Duration) *WasmRunner {
	r := wazero.NewRuntime(ctx)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)
	return &WasmRunner{
		runtime: r,
		modules: make(map[string][]byte),
		timeout: timeout,
	}
}

// RegisterModule binds a call target to WASM module bytes.
func (w *WasmRunner) RegisterModule(target string, wasmBytes []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.modules[target] = wasmBytes
}

// Call implements ActionSink.
func (w *WasmRunner) Call(ctx context.Context, target string, payload []byte, value uint64) error {
	w.mu.Lock()
	wasmBytes, ok := w.modules[target]
	w.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, target)
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	input := make([]byte, 8, 8+len(payload))
	binary.BigEndian.PutUint64(input, value)
	input = append(input, payload...)

	var stdout, stderr bytes.Buffer
	modCfg := wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions("_start").
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	compiled, err := w.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return fmt.Errorf("wasm: compilation failed for %s: %w", target, err)
	}
	defer func() { _ = compiled.Close(ctx) }()

	mod, err := w.runtime.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("wasm: call to %s timed out after %v", target, w.timeout)
		}
		return fmt.Errorf("wasm: call to %s failed: %w", target, err)
	}
	return mod.Close(ctx)
}

// Transfer implements ActionSink. A WASM runner only serves calls; compose
// with a ledger for transfers.
func (w *WasmRunner) Transfer(context.Context, string, uint64) error {
	return fmt.Errorf("%w: wasm runner does not transfer value", ErrUnknownTarget)
}

// Close releases the underlying runtime.
func (w *WasmRunner) Close(ctx context.Context) error {
	return w.runtime.Close(ctx)
}
