// Package protect provides client-side orchestration for field-level
// searchable encryption.
//
// Values are encrypted before they leave the application; the database only
// ever sees envelopes. For each value the package detects a wire data type,
// resolves per-field options against type defaults, builds the engine-facing
// encrypt configuration, runs the operation against a cryptographic engine,
// and normalizes the result back into an application value. The engine
// itself stays behind the Engine interface: all cryptography, including the
// computation of searchable index payloads, happens there.
//
// # Data Types
//
// Every value is tagged with one of nine wire data types: text, boolean,
// small_int, int, big_int, real, double, date, jsonb. DetectDataType infers
// the tag from a Go value; integers take the narrowest fitting width and
// floats split into single or double precision by a decimal-digit probe plus
// a float32 round-trip check. A cast_as option overrides detection.
//
// # Basic Usage
//
//	engine, err := protect.NewLocalEngine(masterKey) // 32-byte key
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	client, err := protect.NewClient(protect.WithEngine(engine))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Encrypt one field
//	env, err := client.Encrypt(ctx, "users.email", "alice@example.com", nil)
//
//	// Decrypt it
//	value, err := client.Decrypt(ctx, env, nil)
//
// # Attributes
//
// EncryptAttributes and DecryptAttributes process a whole record in one bulk
// engine call:
//
//	row, err := client.EncryptAttributes(ctx, "users", map[string]any{
//	    "email": "alice@example.com",
//	    "age":   29,
//	}, nil)
//
// Per-column FieldOptions control the cast, the index set, an encryption
// context, and whether a column is skipped (passed through unencrypted).
//
// # Searchable Encryption
//
// Envelopes carry engine-computed index payloads: an exact-match hash (hm),
// an ordering index (ob), a containment filter (bf) and a structured-vector
// encoding for JSON documents (sv). Which payloads an envelope carries
// follows from the indexes configured for its column; text defaults to
// unique+ore, numbers and dates to ore, booleans to unique, jsonb to none.
// CreateSearchTerms produces the matching query-side terms:
//
//	terms, err := client.CreateSearchTerms(ctx, map[string]any{
//	    "users.email": "alice@example.com",
//	}, nil)
//
// # Engines
//
// Two Engine implementations ship with the package. LocalEngine runs in
// process on NaCl secretbox with per-column HKDF keys and deterministic HMAC
// index tokens; it is meant for development and tests, and its index
// payloads support equality lookups only. HTTPEngine adapts the same
// interface to an engine daemon over HTTP/JSON and is configured explicitly
// or from CS_ENGINE_URL, CS_ACCESS_KEY, CS_WORKSPACE_ID and
// CS_ENGINE_TIMEOUT.
//
// # Encryption Context
//
// A context is an opaque map bound into encryption, for tenant or purpose
// binding. Decrypting with a different context fails; search terms computed
// under a different context match nothing.
//
// # NULL Handling
//
// NULL values are preserved:
//   - Encrypt(ctx, field, nil, opts) returns a nil envelope
//   - nil attribute entries stay nil in bulk results
package protect
