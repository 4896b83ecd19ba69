package protect

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testMasterKey() []byte {
	return []byte("0123456789abcdef0123456789abcdef") // 32 bytes
}

func testColumnConfig(t *testing.T, fields ...FieldConfig) []byte {
	t.Helper()
	b, err := marshalEncryptConfig(fields)
	require.NoError(t, err)
	return b
}

func TestNewLocalEngine_KeySize(t *testing.T) {
	engine, err := NewLocalEngine(testMasterKey())
	require.NoError(t, err)
	require.NotNil(t, engine)

	for _, size := range []int{0, 16, 31, 33, 64} {
		_, err := NewLocalEngine(make([]byte, size))
		require.ErrorIs(t, err, ErrInvalidMasterKey, "key size %d", size)
	}
}

func TestLocalEngine_EncryptDecryptRoundTrip(t *testing.T) {
	engine, err := NewLocalEngine(testMasterKey())
	require.NoError(t, err)
	defer engine.Close()

	config := testColumnConfig(t, FieldConfig{
		Table: "users", Column: "email", CastAs: TypeText, Indexes: defaultIndexes(TypeText),
	})
	client, err := engine.NewClient(context.Background(), config)
	require.NoError(t, err)
	defer client.Close()

	envelopeJSON, err := client.Encrypt(context.Background(), "alice@example.com", "email", "users", nil)
	require.NoError(t, err)

	env, err := envelopeFromJSON(envelopeJSON)
	require.NoError(t, err)
	require.Equal(t, envelopeKindCiphertext, env.Kind)
	require.Equal(t, envelopeVersion, env.Version)
	require.Equal(t, TypeText, env.DataType)
	require.Equal(t, Identifier{Table: "users", Column: "email"}, env.Identifier)

	// Text defaults carry unique and ore terms, nothing else
	require.NotNil(t, env.UniqueHash)
	require.NotNil(t, env.OreIndex)
	require.Nil(t, env.BloomFilter)
	require.Nil(t, env.SteVec)

	// The ciphertext header names the column identity
	raw, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	require.NoError(t, err)
	_, ident, _, _, err := parseFormat(raw)
	require.NoError(t, err)
	require.Equal(t, "users.email", ident)

	plaintext, err := client.Decrypt(context.Background(), env.Ciphertext, nil)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", plaintext)
}

func TestLocalEngine_EncryptIsRandomized(t *testing.T) {
	engine, err := NewLocalEngine(testMasterKey())
	require.NoError(t, err)
	defer engine.Close()

	config := testColumnConfig(t, FieldConfig{Table: "users", Column: "email", CastAs: TypeText})
	client, err := engine.NewClient(context.Background(), config)
	require.NoError(t, err)

	first, err := client.Encrypt(context.Background(), "same value", "email", "users", nil)
	require.NoError(t, err)
	second, err := client.Encrypt(context.Background(), "same value", "email", "users", nil)
	require.NoError(t, err)

	env1, err := envelopeFromJSON(first)
	require.NoError(t, err)
	env2, err := envelopeFromJSON(second)
	require.NoError(t, err)
	require.NotEqual(t, env1.Ciphertext, env2.Ciphertext, "random nonce should vary ciphertexts")
}

func TestLocalEngine_UnknownColumn(t *testing.T) {
	engine, err := NewLocalEngine(testMasterKey())
	require.NoError(t, err)
	defer engine.Close()

	config := testColumnConfig(t, FieldConfig{Table: "users", Column: "email", CastAs: TypeText})
	client, err := engine.NewClient(context.Background(), config)
	require.NoError(t, err)

	_, err = client.Encrypt(context.Background(), "x", "phone", "users", nil)
	require.ErrorIs(t, err, ErrUnknownColumn)
	require.Contains(t, err.Error(), "users.phone")

	_, err = client.Encrypt(context.Background(), "x", "email", "orders", nil)
	require.ErrorIs(t, err, ErrUnknownColumn)
}

func TestLocalEngine_RejectsBadConfig(t *testing.T) {
	engine, err := NewLocalEngine(testMasterKey())
	require.NoError(t, err)
	defer engine.Close()

	_, err = engine.NewClient(context.Background(), []byte(`{not json`))
	require.ErrorIs(t, err, ErrConfigRejected)

	_, err = engine.NewClient(context.Background(), []byte(`{"v":1,"tables":{}}`))
	require.ErrorIs(t, err, ErrConfigRejected)
}

func TestLocalEngine_ContextBinding(t *testing.T) {
	engine, err := NewLocalEngine(testMasterKey())
	require.NoError(t, err)
	defer engine.Close()

	config := testColumnConfig(t, FieldConfig{Table: "users", Column: "email", CastAs: TypeText})
	client, err := engine.NewClient(context.Background(), config)
	require.NoError(t, err)

	boundContext := []byte(`{"tenant":"acme"}`)
	envelopeJSON, err := client.Encrypt(context.Background(), "secret", "email", "users", boundContext)
	require.NoError(t, err)
	env, err := envelopeFromJSON(envelopeJSON)
	require.NoError(t, err)

	// Matching context decrypts
	plaintext, err := client.Decrypt(context.Background(), env.Ciphertext, boundContext)
	require.NoError(t, err)
	require.Equal(t, "secret", plaintext)

	// Missing or different context fails authentication
	_, err = client.Decrypt(context.Background(), env.Ciphertext, nil)
	require.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = client.Decrypt(context.Background(), env.Ciphertext, []byte(`{"tenant":"other"}`))
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestLocalEngine_TamperedCiphertext(t *testing.T) {
	engine, err := NewLocalEngine(testMasterKey())
	require.NoError(t, err)
	defer engine.Close()

	config := testColumnConfig(t, FieldConfig{Table: "users", Column: "email", CastAs: TypeText})
	client, err := engine.NewClient(context.Background(), config)
	require.NoError(t, err)

	envelopeJSON, err := client.Encrypt(context.Background(), "secret", "email", "users", nil)
	require.NoError(t, err)
	env, err := envelopeFromJSON(envelopeJSON)
	require.NoError(t, err)

	// Flip one bit in the sealed box
	raw, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01

	_, err = client.Decrypt(context.Background(), base64.StdEncoding.EncodeToString(raw), nil)
	require.ErrorIs(t, err, ErrDecryptionFailed)

	// Not base64 at all
	_, err = client.Decrypt(context.Background(), "%%% not base64 %%%", nil)
	require.ErrorIs(t, err, ErrInvalidCiphertext)

	// Base64 of garbage
	_, err = client.Decrypt(context.Background(), base64.StdEncoding.EncodeToString([]byte{0x00, 0x01}), nil)
	require.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestLocalEngine_CompressionFlag(t *testing.T) {
	flagOf := func(t *testing.T, env *Envelope) byte {
		t.Helper()
		raw, err := base64.StdEncoding.DecodeString(env.Ciphertext)
		require.NoError(t, err)
		return raw[0]
	}

	long := strings.Repeat("compressible plaintext ", 200)

	t.Run("large payloads compress", func(t *testing.T) {
		engine, err := NewLocalEngine(testMasterKey(), WithCompressionThreshold(64))
		require.NoError(t, err)
		defer engine.Close()

		config := testColumnConfig(t, FieldConfig{Table: "docs", Column: "body", CastAs: TypeText})
		client, err := engine.NewClient(context.Background(), config)
		require.NoError(t, err)

		envelopeJSON, err := client.Encrypt(context.Background(), long, "body", "docs", nil)
		require.NoError(t, err)
		env, err := envelopeFromJSON(envelopeJSON)
		require.NoError(t, err)
		require.Equal(t, flagZstd, flagOf(t, env))

		plaintext, err := client.Decrypt(context.Background(), env.Ciphertext, nil)
		require.NoError(t, err)
		require.Equal(t, long, plaintext)
	})

	t.Run("small payloads stay raw", func(t *testing.T) {
		engine, err := NewLocalEngine(testMasterKey())
		require.NoError(t, err)
		defer engine.Close()

		config := testColumnConfig(t, FieldConfig{Table: "docs", Column: "body", CastAs: TypeText})
		client, err := engine.NewClient(context.Background(), config)
		require.NoError(t, err)

		envelopeJSON, err := client.Encrypt(context.Background(), "short", "body", "docs", nil)
		require.NoError(t, err)
		env, err := envelopeFromJSON(envelopeJSON)
		require.NoError(t, err)
		require.Equal(t, flagNoCompression, flagOf(t, env))
	})

	t.Run("disabled stays raw", func(t *testing.T) {
		engine, err := NewLocalEngine(testMasterKey(), WithCompressionDisabled())
		require.NoError(t, err)
		defer engine.Close()

		config := testColumnConfig(t, FieldConfig{Table: "docs", Column: "body", CastAs: TypeText})
		client, err := engine.NewClient(context.Background(), config)
		require.NoError(t, err)

		envelopeJSON, err := client.Encrypt(context.Background(), long, "body", "docs", nil)
		require.NoError(t, err)
		env, err := envelopeFromJSON(envelopeJSON)
		require.NoError(t, err)
		require.Equal(t, flagNoCompression, flagOf(t, env))

		plaintext, err := client.Decrypt(context.Background(), env.Ciphertext, nil)
		require.NoError(t, err)
		require.Equal(t, long, plaintext)
	})
}

func TestLocalEngine_Bulk(t *testing.T) {
	engine, err := NewLocalEngine(testMasterKey())
	require.NoError(t, err)
	defer engine.Close()

	config := testColumnConfig(t,
		FieldConfig{Table: "users", Column: "age", CastAs: TypeSmallInt, Indexes: defaultIndexes(TypeSmallInt)},
		FieldConfig{Table: "users", Column: "email", CastAs: TypeText, Indexes: defaultIndexes(TypeText)},
	)
	client, err := engine.NewClient(context.Background(), config)
	require.NoError(t, err)

	items := []bulkEncryptItem{
		{Plaintext: "30", Column: "age", Table: "users"},
		{Plaintext: "alice@example.com", Column: "email", Table: "users"},
	}
	itemsJSON, err := json.Marshal(items)
	require.NoError(t, err)

	resultsJSON, err := client.EncryptBulk(context.Background(), itemsJSON)
	require.NoError(t, err)

	envs, err := parseEnvelopeResults(resultsJSON, 2)
	require.NoError(t, err)

	// Results come back in submission order
	require.Equal(t, "age", envs[0].Identifier.Column)
	require.Equal(t, TypeSmallInt, envs[0].DataType)
	require.Equal(t, "email", envs[1].Identifier.Column)

	decryptItems := []bulkDecryptItem{
		{Ciphertext: envs[0].Ciphertext},
		{Ciphertext: envs[1].Ciphertext},
	}
	decryptJSON, err := json.Marshal(decryptItems)
	require.NoError(t, err)

	plaintextsJSON, err := client.DecryptBulk(context.Background(), decryptJSON)
	require.NoError(t, err)

	plaintexts, err := parsePlaintextResults(plaintextsJSON, 2)
	require.NoError(t, err)
	require.Equal(t, []string{"30", "alice@example.com"}, plaintexts)
}

func TestLocalEngine_SearchTermMatchesStoredTerm(t *testing.T) {
	engine, err := NewLocalEngine(testMasterKey())
	require.NoError(t, err)
	defer engine.Close()

	config := testColumnConfig(t, FieldConfig{
		Table: "users", Column: "email", CastAs: TypeText, Indexes: defaultIndexes(TypeText),
	})
	client, err := engine.NewClient(context.Background(), config)
	require.NoError(t, err)

	envelopeJSON, err := client.Encrypt(context.Background(), "alice@example.com", "email", "users", nil)
	require.NoError(t, err)
	env, err := envelopeFromJSON(envelopeJSON)
	require.NoError(t, err)

	var storedTerm string
	require.NoError(t, json.Unmarshal(env.UniqueHash, &storedTerm))

	itemsJSON, err := json.Marshal([]bulkEncryptItem{
		{Plaintext: "alice@example.com", Column: "email", Table: "users"},
	})
	require.NoError(t, err)

	termsJSON, err := client.CreateSearchTerms(context.Background(), itemsJSON)
	require.NoError(t, err)

	var terms []localSearchTerm
	require.NoError(t, json.Unmarshal(termsJSON, &terms))
	require.Len(t, terms, 1)

	// The derived search term equals the term stored in the envelope, which
	// is what makes WHERE hm = ? queries find the row.
	require.Equal(t, storedTerm, terms[0].UniqueHash)
	require.Equal(t, Identifier{Table: "users", Column: "email"}, terms[0].Identifier)

	// A different value derives a different term
	otherJSON, err := json.Marshal([]bulkEncryptItem{
		{Plaintext: "bob@example.com", Column: "email", Table: "users"},
	})
	require.NoError(t, err)
	otherTermsJSON, err := client.CreateSearchTerms(context.Background(), otherJSON)
	require.NoError(t, err)
	var otherTerms []localSearchTerm
	require.NoError(t, json.Unmarshal(otherTermsJSON, &otherTerms))
	require.NotEqual(t, storedTerm, otherTerms[0].UniqueHash)
}

func TestLocalEngine_IndexSelection(t *testing.T) {
	engine, err := NewLocalEngine(testMasterKey())
	require.NoError(t, err)
	defer engine.Close()

	encrypt := func(t *testing.T, indexes map[string]any, plaintext string) *Envelope {
		t.Helper()
		config := testColumnConfig(t, FieldConfig{
			Table: "users", Column: "profile", CastAs: TypeText, Indexes: indexes,
		})
		client, err := engine.NewClient(context.Background(), config)
		require.NoError(t, err)
		envelopeJSON, err := client.Encrypt(context.Background(), plaintext, "profile", "users", nil)
		require.NoError(t, err)
		env, err := envelopeFromJSON(envelopeJSON)
		require.NoError(t, err)
		return env
	}

	t.Run("no indexes", func(t *testing.T) {
		env := encrypt(t, map[string]any{}, "value")
		require.Nil(t, env.UniqueHash)
		require.Nil(t, env.OreIndex)
		require.Nil(t, env.BloomFilter)
		require.Nil(t, env.SteVec)
	})

	t.Run("match only", func(t *testing.T) {
		env := encrypt(t, map[string]any{IndexMatch: map[string]any{}}, "hello world")
		require.Nil(t, env.UniqueHash)
		require.NotNil(t, env.BloomFilter)

		var terms []string
		require.NoError(t, json.Unmarshal(env.BloomFilter, &terms))
		require.Len(t, terms, 2)
	})

	t.Run("ste_vec only", func(t *testing.T) {
		env := encrypt(t, map[string]any{IndexSteVec: map[string]any{}}, `{"a":1}`)
		require.Nil(t, env.UniqueHash)
		require.NotNil(t, env.SteVec)

		var entries []steVecEntry
		require.NoError(t, json.Unmarshal(env.SteVec, &entries))
		require.Len(t, entries, 1)
		require.Equal(t, "$.a", entries[0].Selector)
	})
}

func TestLocalEngine_Closed(t *testing.T) {
	engine, err := NewLocalEngine(testMasterKey())
	require.NoError(t, err)

	config := testColumnConfig(t, FieldConfig{Table: "users", Column: "email", CastAs: TypeText})
	client, err := engine.NewClient(context.Background(), config)
	require.NoError(t, err)

	require.NoError(t, engine.Close())

	// New clients are refused and outstanding clients stop working
	_, err = engine.NewClient(context.Background(), config)
	require.ErrorIs(t, err, ErrEngineClosed)

	_, err = client.Encrypt(context.Background(), "x", "email", "users", nil)
	require.ErrorIs(t, err, ErrEngineClosed)
}

func TestLocalEngine_ClientClose(t *testing.T) {
	engine, err := NewLocalEngine(testMasterKey())
	require.NoError(t, err)
	defer engine.Close()

	config := testColumnConfig(t, FieldConfig{Table: "users", Column: "email", CastAs: TypeText})
	client, err := engine.NewClient(context.Background(), config)
	require.NoError(t, err)

	require.NoError(t, client.Close())
	_, err = client.Encrypt(context.Background(), "x", "email", "users", nil)
	require.ErrorIs(t, err, ErrEngineClosed)

	// The engine itself still hands out fresh clients
	fresh, err := engine.NewClient(context.Background(), config)
	require.NoError(t, err)
	_, err = fresh.Encrypt(context.Background(), "x", "email", "users", nil)
	require.NoError(t, err)
}

func TestClient_WithLocalEngine_EndToEnd(t *testing.T) {
	engine, err := NewLocalEngine(testMasterKey())
	require.NoError(t, err)
	defer engine.Close()

	client, err := NewClient(WithEngine(engine))
	require.NoError(t, err)

	ctx := context.Background()

	env, err := client.Encrypt(ctx, "users.email", "alice@example.com", nil)
	require.NoError(t, err)
	require.NotEqual(t, "alice@example.com", env.Ciphertext)

	decrypted, err := client.Decrypt(ctx, env, nil)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", decrypted)

	// Attribute round trip across mixed types
	attributes := map[string]any{
		"email":  "bob@example.com",
		"age":    42,
		"score":  1.5,
		"active": true,
		"note":   nil,
	}
	encrypted, err := client.EncryptAttributes(ctx, "users", attributes, nil)
	require.NoError(t, err)
	require.Nil(t, encrypted["note"])

	decryptedAttrs, err := client.DecryptAttributes(ctx, "users", encrypted, nil)
	require.NoError(t, err)
	require.Equal(t, "bob@example.com", decryptedAttrs["email"])
	require.Equal(t, int64(42), decryptedAttrs["age"])
	require.Equal(t, 1.5, decryptedAttrs["score"])
	require.Equal(t, true, decryptedAttrs["active"])
	require.Nil(t, decryptedAttrs["note"])

	// A search term derived for the same value matches the stored envelope term
	terms, err := client.CreateSearchTerms(ctx, map[string]any{"users.email": "alice@example.com"}, nil)
	require.NoError(t, err)

	var term struct {
		UniqueHash string `json:"hm"`
	}
	require.NoError(t, json.Unmarshal(terms["users.email"].(SearchTerm), &term))

	var storedTerm string
	require.NoError(t, json.Unmarshal(env.UniqueHash, &storedTerm))
	require.Equal(t, storedTerm, term.UniqueHash)

	// Context binding survives the orchestration layer
	bound, err := client.Encrypt(ctx, "users.ssn", "123-45-6789",
		&FieldOptions{Context: map[string]any{"tenant": "acme"}})
	require.NoError(t, err)

	_, err = client.Decrypt(ctx, bound, nil)
	var decErr *DecryptError
	require.ErrorAs(t, err, &decErr)
	require.ErrorIs(t, err, ErrDecryptionFailed)

	got, err := client.Decrypt(ctx, bound, &FieldOptions{Context: map[string]any{"tenant": "acme"}})
	require.NoError(t, err)
	require.Equal(t, "123-45-6789", got)
}
