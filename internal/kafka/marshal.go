package kafka

import (
	"encoding/json"
	"fmt"
)

// MustMarshal dipakai di sisi producer: envelope dan payload dibangun dari
// struct kita sendiri, jadi gagal marshal = bug, bukan kondisi runtime.
func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// UnmarshalEnvelope decode amplop event dari message value.
func UnmarshalEnvelope(b []byte, out any) error {
	return json.Unmarshal(b, out)
}

// UnwrapPayload decode payload spesifik event setelah cek event_type.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
