// Package jsonmerge is the reference schema applier: document state is an
// arbitrary JSON object and each op is a JSON-merge-patch fragment applied
// in sequence (RFC 7386 semantics: a null value removes a key, an object
// value recurses, anything else replaces).
package jsonmerge

import (
	"encoding/json"
	"fmt"

	"github.com/foundrysync/mimic/pkg/model"
)

// Applier implements schema.Applier over JSON-merge-patch operations.
type Applier struct{}

// New returns a ready-to-use jsonmerge Applier.
func New() *Applier { return &Applier{} }

// Validate checks that tx is well-formed: non-empty ops, each a valid
// JSON value.
func (a *Applier) Validate(_ []byte, tx model.Transaction) string {
	if len(tx.Ops) == 0 {
		return "Transaction is empty"
	}
	for _, op := range tx.Ops {
		if !json.Valid(op) {
			return "Transaction contains a malformed operation"
		}
	}
	return ""
}

// Apply merges each op into state in order.
func (a *Applier) Apply(state []byte, ops []model.RawOp) ([]byte, error) {
	var current map[string]any
	if len(state) > 0 {
		if err := json.Unmarshal(state, &current); err != nil {
			return nil, fmt.Errorf("decode current state: %w", err)
		}
	}
	if current == nil {
		current = map[string]any{}
	}
	for _, op := range ops {
		var patch map[string]any
		if err := json.Unmarshal(op, &patch); err != nil {
			return nil, fmt.Errorf("decode operation: %w", err)
		}
		current = mergePatch(current, patch)
	}
	return json.Marshal(current)
}

func mergePatch(dst, patch map[string]any) map[string]any {
	for k, v := range patch {
		if v == nil {
			delete(dst, k)
			continue
		}
		if patchChild, ok := v.(map[string]any); ok {
			if dstChild, ok := dst[k].(map[string]any); ok {
				dst[k] = mergePatch(dstChild, patchChild)
				continue
			}
		}
		dst[k] = v
	}
	return dst
}

// Initial returns an empty JSON object as the fresh-document state.
func (a *Applier) Initial(_ string) ([]byte, error) {
	return []byte("{}"), nil
}

// Encode marshals tx as canonical JSON.
func (a *Applier) Encode(tx model.Transaction) ([]byte, error) {
	return json.Marshal(tx)
}

// Decode parses the canonical JSON form produced by Encode.
func (a *Applier) Decode(data []byte) (model.Transaction, error) {
	var tx model.Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return model.Transaction{}, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}
