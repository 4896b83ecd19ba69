package protect

import "context"

// Engine creates engine clients. An engine client is the stateful handle the
// cryptographic engine exposes; this package acquires exactly one per public
// operation and releases it before returning, on every path.
//
// Implement this interface to integrate an engine: LocalEngine is the
// in-process reference implementation and HTTPEngine adapts an engine daemon
// reachable over HTTP.
type Engine interface {
	// NewClient creates a client scoped to one operation. configJSON is the
	// versioned encrypt configuration payload; creation fails if the engine
	// rejects it.
	NewClient(ctx context.Context, configJSON []byte) (EngineClient, error)
}

// EngineClient is one operation-scoped engine handle. Bulk payloads are JSON
// arrays and the engine is contractually required to return results in the
// order the items were submitted.
type EngineClient interface {
	// Encrypt encrypts one plaintext for a column and returns the envelope
	// as JSON. contextJSON is nil when no encryption context is bound.
	Encrypt(ctx context.Context, plaintext, column, table string, contextJSON []byte) ([]byte, error)

	// Decrypt recovers the wire-string plaintext from a ciphertext.
	Decrypt(ctx context.Context, ciphertext string, contextJSON []byte) (string, error)

	// EncryptBulk encrypts a JSON array of items and returns a JSON array of
	// envelopes in the same order.
	EncryptBulk(ctx context.Context, itemsJSON []byte) ([]byte, error)

	// DecryptBulk decrypts a JSON array of items and returns a JSON array of
	// wire-string plaintexts in the same order.
	DecryptBulk(ctx context.Context, itemsJSON []byte) ([]byte, error)

	// CreateSearchTerms derives searchable terms for a JSON array of items
	// and returns a JSON array of term payloads in the same order.
	CreateSearchTerms(ctx context.Context, itemsJSON []byte) ([]byte, error)

	// Close releases the handle. Safe to call once per successful create;
	// the client is unusable afterwards.
	Close() error
}
