package protect

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"golang.org/x/crypto/nacl/secretbox"
)

// LocalEngine is an in-process engine for development and tests. It seals
// values with XSalsa20-Poly1305 under per-column keys derived from a single
// 32-byte master key, and computes deterministic HMAC search terms for the
// configured indexes. It is safe for concurrent use.
//
// The index payloads it produces are equality tokens only. Range queries and
// probabilistic membership need a production engine; a LocalEngine-backed
// deployment gets exact-match search and nothing more.
type LocalEngine struct {
	masterKey [32]byte
	config    localConfig
	closed    atomic.Bool
}

// localConfig holds LocalEngine construction options.
type localConfig struct {
	compressionThreshold int
	compressionDisabled  bool
}

// LocalOption is a functional option for configuring a LocalEngine.
type LocalOption func(*localConfig)

// WithCompressionThreshold sets the plaintext size in bytes above which
// sealing attempts zstd compression. The default is 1KB.
func WithCompressionThreshold(threshold int) LocalOption {
	return func(c *localConfig) {
		c.compressionThreshold = threshold
	}
}

// WithCompressionDisabled turns plaintext compression off entirely.
func WithCompressionDisabled() LocalOption {
	return func(c *localConfig) {
		c.compressionDisabled = true
	}
}

// NewLocalEngine creates a LocalEngine from a 32-byte master key.
//
// Example:
//
//	engine, err := protect.NewLocalEngine(masterKey)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
func NewLocalEngine(masterKey []byte, opts ...LocalOption) (*LocalEngine, error) {
	if len(masterKey) != 32 {
		return nil, ErrInvalidMasterKey
	}
	cfg := localConfig{compressionThreshold: defaultCompressionThreshold}
	for _, opt := range opts {
		opt(&cfg)
	}
	e := &LocalEngine{config: cfg}
	copy(e.masterKey[:], masterKey)
	return e, nil
}

// NewClient implements Engine. The config must carry format version 2;
// encryption is then limited to the columns it declares.
func (e *LocalEngine) NewClient(ctx context.Context, configJSON []byte) (EngineClient, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	cfg, err := parseEncryptConfig(configJSON)
	if err != nil {
		return nil, err
	}
	return &localClient{engine: e, config: cfg}, nil
}

// Close zeros the master key from memory. Call this when the engine is no
// longer needed to reduce key exposure window. Outstanding clients fail
// their next operation.
func (e *LocalEngine) Close() error {
	e.closed.Store(true)
	for i := range e.masterKey {
		e.masterKey[i] = 0
	}
	return nil
}

var _ Engine = (*LocalEngine)(nil)

// localClient is one operation-scoped client of a LocalEngine.
type localClient struct {
	engine *LocalEngine
	config EncryptConfig
	closed atomic.Bool
}

var _ EngineClient = (*localClient)(nil)

// bulkEncryptItem is the wire shape of one bulk encrypt or search term item.
type bulkEncryptItem struct {
	Plaintext string         `json:"plaintext"`
	Column    string         `json:"column"`
	Table     string         `json:"table"`
	Context   map[string]any `json:"context,omitempty"`
}

// bulkDecryptItem is the wire shape of one bulk decrypt item.
type bulkDecryptItem struct {
	Ciphertext string         `json:"ciphertext"`
	Context    map[string]any `json:"context,omitempty"`
}

// localSearchTerm is the term set computed for one search item. All standard
// kinds are derived; callers use whichever their query shape needs.
type localSearchTerm struct {
	UniqueHash  string        `json:"hm"`
	OreIndex    []string      `json:"ob"`
	BloomFilter []string      `json:"bf"`
	SteVec      []steVecEntry `json:"sv"`
	Identifier  Identifier    `json:"i"`
}

func (c *localClient) usable() error {
	if c.closed.Load() || c.engine.closed.Load() {
		return ErrEngineClosed
	}
	return nil
}

func (c *localClient) Encrypt(ctx context.Context, plaintext, column, table string, contextJSON []byte) ([]byte, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	env, err := c.encryptOne(plaintext, column, table, contextJSON)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func (c *localClient) Decrypt(ctx context.Context, ciphertext string, contextJSON []byte) (string, error) {
	if err := c.usable(); err != nil {
		return "", err
	}
	return c.decryptOne(ciphertext, contextJSON)
}

func (c *localClient) EncryptBulk(ctx context.Context, itemsJSON []byte) ([]byte, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	var items []bulkEncryptItem
	if err := json.Unmarshal(itemsJSON, &items); err != nil {
		return nil, fmt.Errorf("protect: malformed bulk encrypt payload: %w", err)
	}
	envelopes := make([]*Envelope, len(items))
	for i, item := range items {
		contextJSON, err := marshalContext(item.Context)
		if err != nil {
			return nil, err
		}
		env, err := c.encryptOne(item.Plaintext, item.Column, item.Table, contextJSON)
		if err != nil {
			return nil, err
		}
		envelopes[i] = env
	}
	return json.Marshal(envelopes)
}

func (c *localClient) DecryptBulk(ctx context.Context, itemsJSON []byte) ([]byte, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	var items []bulkDecryptItem
	if err := json.Unmarshal(itemsJSON, &items); err != nil {
		return nil, fmt.Errorf("protect: malformed bulk decrypt payload: %w", err)
	}
	plaintexts := make([]string, len(items))
	for i, item := range items {
		contextJSON, err := marshalContext(item.Context)
		if err != nil {
			return nil, err
		}
		plaintext, err := c.decryptOne(item.Ciphertext, contextJSON)
		if err != nil {
			return nil, err
		}
		plaintexts[i] = plaintext
	}
	return json.Marshal(plaintexts)
}

func (c *localClient) CreateSearchTerms(ctx context.Context, itemsJSON []byte) ([]byte, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	var items []bulkEncryptItem
	if err := json.Unmarshal(itemsJSON, &items); err != nil {
		return nil, fmt.Errorf("protect: malformed search term payload: %w", err)
	}
	terms := make([]localSearchTerm, len(items))
	for i, item := range items {
		contextJSON, err := marshalContext(item.Context)
		if err != nil {
			return nil, err
		}
		ident := item.Table + "." + item.Column
		keys, err := deriveColumnKeys(c.engine.masterKey[:], ident, contextJSON)
		if err != nil {
			return nil, err
		}
		terms[i] = localSearchTerm{
			UniqueHash:  uniqueTerm(&keys.term, item.Plaintext),
			OreIndex:    oreTerms(&keys.term, item.Plaintext),
			BloomFilter: matchTerms(&keys.term, item.Plaintext),
			SteVec:      steVecTerms(&keys.term, item.Plaintext),
			Identifier:  Identifier{Table: item.Table, Column: item.Column},
		}
	}
	return json.Marshal(terms)
}

// Close implements EngineClient. Key material lives on the engine, so there
// is nothing to zero here; the client just stops accepting operations.
func (c *localClient) Close() error {
	c.closed.Store(true)
	return nil
}

// encryptOne seals one plaintext for a configured column and assembles its
// envelope, including terms for each configured index.
func (c *localClient) encryptOne(plaintext, column, table string, contextJSON []byte) (*Envelope, error) {
	columnConfig, ok := c.config.Tables[table][column]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownColumn, table, column)
	}
	ident := table + "." + column
	if len(ident) > maxIdentLen {
		return nil, fmt.Errorf("protect: column identity exceeds %d bytes", maxIdentLen)
	}
	keys, err := deriveColumnKeys(c.engine.masterKey[:], ident, contextJSON)
	if err != nil {
		return nil, err
	}

	sealed := c.seal(keys, ident, []byte(plaintext))
	env := &Envelope{
		Kind:       envelopeKindCiphertext,
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
		DataType:   columnConfig.CastAs,
		Identifier: Identifier{Table: table, Column: column},
		Version:    envelopeVersion,
	}
	if err := attachIndexTerms(env, columnConfig.Indexes, &keys.term, plaintext); err != nil {
		return nil, err
	}
	return env, nil
}

// seal encrypts an ident-bound plaintext with secretbox.
func (c *localClient) seal(keys *columnKeys, ident string, plaintext []byte) []byte {
	inner := formatInnerPlaintext(ident, plaintext)
	toEncrypt, flag := maybeCompress(inner, c.engine.config.compressionThreshold, c.engine.config.compressionDisabled)
	nonce := generateNonce()
	box := secretbox.Seal(nil, toEncrypt, &nonce, &keys.sealing)
	return formatCiphertext(flag, ident, nonce, box)
}

// decryptOne opens one base64 ciphertext and verifies its column binding.
func (c *localClient) decryptOne(ciphertext string, contextJSON []byte) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	flag, ident, nonce, box, err := parseFormat(raw)
	if err != nil {
		return "", err
	}
	keys, err := deriveColumnKeys(c.engine.masterKey[:], ident, contextJSON)
	if err != nil {
		return "", err
	}
	opened, ok := secretbox.Open(nil, box, &nonce, &keys.sealing)
	if !ok {
		return "", ErrDecryptionFailed
	}
	decompressed, err := decompress(opened, flag)
	if err != nil {
		return "", err
	}
	innerIdent, plaintext, err := parseInnerPlaintext(decompressed)
	if err != nil {
		return "", err
	}
	// Verify the authenticated inner identity matches the outer header
	if subtle.ConstantTimeCompare([]byte(innerIdent), []byte(ident)) != 1 {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}

// attachIndexTerms fills the envelope's index fields for each configured
// index. Unconfigured fields stay nil and marshal as absent.
func attachIndexTerms(env *Envelope, indexes map[string]any, key *[32]byte, plaintext string) error {
	var err error
	if _, ok := indexes[IndexUnique]; ok {
		if env.UniqueHash, err = json.Marshal(uniqueTerm(key, plaintext)); err != nil {
			return err
		}
	}
	if _, ok := indexes[IndexOre]; ok {
		if env.OreIndex, err = json.Marshal(oreTerms(key, plaintext)); err != nil {
			return err
		}
	}
	if _, ok := indexes[IndexMatch]; ok {
		if env.BloomFilter, err = json.Marshal(matchTerms(key, plaintext)); err != nil {
			return err
		}
	}
	if _, ok := indexes[IndexSteVec]; ok {
		if env.SteVec, err = json.Marshal(steVecTerms(key, plaintext)); err != nil {
			return err
		}
	}
	return nil
}

// generateNonce generates a cryptographically secure random 24-byte nonce.
// Panics if the system's random source fails (unrecoverable).
func generateNonce() [24]byte {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return nonce
}
