// Package schema defines the pluggable validator/state-folder contract
// that the document runtime applies transactions through. The engine
// never interprets operation bytes itself.
package schema

import "github.com/foundrysync/mimic/pkg/model"

// Applier validates and applies transactions against an opaque document
// state. A concrete schema (e.g. a CRDT library, a JSON-merge scheme, a
// domain-specific op log) implements this once and is injected into every
// document runtime that uses it.
type Applier interface {
	// Validate returns a non-empty reason if tx cannot be applied to
	// state, or "" if it is acceptable. Validation must be pure.
	Validate(state []byte, tx model.Transaction) (reason string)

	// Apply folds ops over state and returns the resulting state. Called
	// only after Validate has returned "".
	Apply(state []byte, ops []model.RawOp) ([]byte, error)

	// Initial returns the state of a brand new document with no
	// snapshot and no WAL history.
	Initial(documentID string) ([]byte, error)

	// Encode canonicalizes tx into its wire form.
	Encode(tx model.Transaction) ([]byte, error)

	// Decode parses the wire form produced by Encode back into a
	// Transaction.
	Decode(data []byte) (model.Transaction, error)
}
