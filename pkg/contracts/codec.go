package contracts

import (
	"encoding/json"
	"fmt"
)

// MustEncode marshals v into a raw message for use as a request or action
// payload. It panics on marshal failure, which can only happen for types
// outside this package's closed payload set.
func MustEncode(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("contracts: encode %T: %v", v, err))
	}
	return b
}

// Decode unmarshals a kind-tagged payload into its typed form.
func Decode[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, fmt.Errorf("contracts: empty payload for %T", v)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("contracts: decode %T: %w", v, err)
	}
	return v, nil
}
