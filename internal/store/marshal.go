package store

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/blogchain/internal/ir"
)

// MarshalFields converts entry fields to canonical JSON TEXT for storage.
// Stored bytes are exactly the bytes that were hashed.
func MarshalFields(fields ir.Object) (string, error) {
	if fields == nil {
		fields = ir.Object{}
	}
	data, err := ir.MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

// UnmarshalFields parses stored fields. Uses ir.Object.UnmarshalJSON so
// integers above 2^53 keep their precision.
func UnmarshalFields(data string) (ir.Object, error) {
	if data == "" || data == "{}" {
		return ir.Object{}, nil
	}
	var obj ir.Object
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return obj, nil
}

// NewAgent returns a fresh agent identity. UUIDv7 keeps identities
// roughly ordered by creation.
func NewAgent() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate agent id: %w", err)
	}
	return id.String(), nil
}

// ChooseAlgorithm reconciles the algorithm a store was created with
// (stored, empty for a new store) with the one the caller asked for.
func ChooseAlgorithm(stored, requested ir.HashAlgorithm) (ir.Hasher, error) {
	alg := stored
	switch {
	case stored == "":
		alg = requested
	case requested != "" && requested != stored:
		return ir.Hasher{}, fmt.Errorf("%w: store uses %s, requested %s", ErrAlgorithmMismatch, stored, requested)
	}
	return ir.NewHasher(alg)
}
