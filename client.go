package protect

import (
	"context"

	"github.com/rs/zerolog"
)

// Client orchestrates encryption operations against an engine. It holds no
// per-operation state: every public operation validates its input, resolves
// options, acquires one engine client, performs one engine round trip, and
// releases the client before returning. A Client is safe for concurrent use
// if its Engine is.
type Client struct {
	engine Engine
	log    zerolog.Logger
}

// clientConfig holds Client construction options.
type clientConfig struct {
	engine Engine
	log    zerolog.Logger
}

// Option is a functional option for configuring a Client.
type Option func(*clientConfig)

// WithEngine sets the engine the client operates against. Required.
func WithEngine(engine Engine) Option {
	return func(c *clientConfig) {
		c.engine = engine
	}
}

// WithLogger sets the logger for debug-level operation traces.
// The default is a no-op logger; the library is silent unless one is wired.
func WithLogger(log zerolog.Logger) Option {
	return func(c *clientConfig) {
		c.log = log
	}
}

// NewClient creates a new Client with the given options.
// An engine must be provided via WithEngine.
//
// Example:
//
//	engine, err := protect.NewLocalEngine(masterKey)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	client, err := protect.NewClient(protect.WithEngine(engine))
func NewClient(opts ...Option) (*Client, error) {
	cfg := clientConfig{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.engine == nil {
		return nil, ErrNoEngine
	}
	return &Client{engine: cfg.engine, log: cfg.log}, nil
}

// Encrypt encrypts a single value for the field "table.column" and returns
// its envelope. A nil value returns a nil envelope (NULL preservation); any
// other value without a wire representation is a validation failure, since
// the single-value path has no way to pass it through.
//
// Recognized options are CastAs, Indexes and Context. Skip applies to bulk
// operations only and is ignored here.
func (c *Client) Encrypt(ctx context.Context, field string, value any, opts *FieldOptions) (*Envelope, error) {
	table, column, err := validateField(field)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return nil, nil
	}
	dt, ok := DetectDataType(value)
	if !ok {
		return nil, validationErrf(field, "value of type %T has no wire representation", value)
	}
	resolved, err := resolveOptions(opts, dt, true)
	if err != nil {
		return nil, err
	}
	contextJSON, err := marshalContext(resolved.context)
	if err != nil {
		return nil, err
	}
	configJSON, err := marshalEncryptConfig([]FieldConfig{{
		Table:   table,
		Column:  column,
		CastAs:  resolved.castAs,
		Indexes: resolved.indexes,
	}})
	if err != nil {
		return nil, err
	}

	plaintext, err := encodeValue(value, resolved.castAs)
	if err != nil {
		return nil, err
	}

	engineClient, err := c.engine.NewClient(ctx, configJSON)
	if err != nil {
		return nil, &EncryptError{Reason: "create engine client", Err: err}
	}
	defer c.releaseEngineClient(engineClient)

	envelopeJSON, err := engineClient.Encrypt(ctx, plaintext, column, table, contextJSON)
	if err != nil {
		return nil, &EncryptError{Reason: "engine encrypt call", Err: err}
	}
	env, err := envelopeFromJSON(envelopeJSON)
	if err != nil {
		return nil, err
	}
	c.log.Debug().Str("table", table).Str("column", column).
		Str("cast_as", string(resolved.castAs)).Msg("encrypted value")
	return env, nil
}

// Decrypt recovers the application value from an envelope. The envelope may
// be an *Envelope, an Envelope, a JSON-decoded map, raw JSON bytes, or a
// JSON string. The only recognized option is Context, which must match the
// context the value was encrypted with.
func (c *Client) Decrypt(ctx context.Context, envelope any, opts *FieldOptions) (any, error) {
	env, err := envelopeFromAny(envelope)
	if err != nil {
		return nil, err
	}
	var callContext map[string]any
	if opts != nil {
		callContext = opts.Context
	}
	contextJSON, err := marshalContext(callContext)
	if err != nil {
		return nil, err
	}
	configJSON, err := marshalEncryptConfig(nil)
	if err != nil {
		return nil, err
	}

	engineClient, err := c.engine.NewClient(ctx, configJSON)
	if err != nil {
		return nil, &DecryptError{Reason: "create engine client", Err: err}
	}
	defer c.releaseEngineClient(engineClient)

	plaintext, err := engineClient.Decrypt(ctx, env.Ciphertext, contextJSON)
	if err != nil {
		return nil, &DecryptError{Reason: "engine decrypt call", Err: err}
	}
	c.log.Debug().Str("table", env.Identifier.Table).
		Str("column", env.Identifier.Column).Msg("decrypted value")
	return decodeValue(plaintext, env.DataType)
}

// releaseEngineClient closes an operation-scoped engine client. Close
// failures are logged, not surfaced: the operation's own result already
// carries the interesting error.
func (c *Client) releaseEngineClient(engineClient EngineClient) {
	if err := engineClient.Close(); err != nil {
		c.log.Debug().Err(err).Msg("engine client close failed")
	}
}
