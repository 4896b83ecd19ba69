package protect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HTTPEngineConfig configures an HTTPEngine. Zero fields are filled from the
// environment, then from defaults, so an explicit value always wins over its
// environment variable.
type HTTPEngineConfig struct {
	// BaseURL is the engine daemon address. Default http://localhost:8788.
	BaseURL string `env:"CS_ENGINE_URL"`
	// AccessKey is sent as a bearer token when set.
	AccessKey string `env:"CS_ACCESS_KEY"`
	// WorkspaceID is sent as the X-Workspace-Id header when set.
	WorkspaceID string `env:"CS_WORKSPACE_ID"`
	// Timeout bounds each engine request. Default 15s.
	Timeout time.Duration `env:"CS_ENGINE_TIMEOUT"`
	// Logger receives debug-level request traces when set.
	Logger *zerolog.Logger `env:"-"`
}

// defaultHTTPEngineConfig fills whatever explicit config and environment
// left unset.
var defaultHTTPEngineConfig = HTTPEngineConfig{
	BaseURL: "http://localhost:8788",
	Timeout: 15 * time.Second,
}

// resolveHTTPEngineConfig layers explicit > environment > defaults.
func resolveHTTPEngineConfig(explicit HTTPEngineConfig) (HTTPEngineConfig, error) {
	envConfig := HTTPEngineConfig{}
	if err := env.Parse(&envConfig); err != nil {
		return HTTPEngineConfig{}, fmt.Errorf("protect: parse engine environment: %w", err)
	}
	cfg := explicit
	if err := mergo.Merge(&cfg, envConfig); err != nil {
		return HTTPEngineConfig{}, fmt.Errorf("protect: merge engine config: %w", err)
	}
	if err := mergo.Merge(&cfg, defaultHTTPEngineConfig); err != nil {
		return HTTPEngineConfig{}, fmt.Errorf("protect: merge engine config: %w", err)
	}
	return cfg, nil
}

// HTTPEngine implements Engine against an engine daemon speaking the
// /v2/clients HTTP/JSON surface. Each EngineClient corresponds to one
// server-side client resource, created on NewClient and destroyed on Close.
type HTTPEngine struct {
	client *resty.Client
	log    zerolog.Logger
}

// NewHTTPEngine creates an HTTPEngine from the given config, with unset
// fields resolved from CS_ENGINE_URL, CS_ACCESS_KEY, CS_WORKSPACE_ID and
// CS_ENGINE_TIMEOUT.
func NewHTTPEngine(cfg HTTPEngineConfig) (*HTTPEngine, error) {
	resolved, err := resolveHTTPEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	log := zerolog.Nop()
	if resolved.Logger != nil {
		log = *resolved.Logger
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(resolved.BaseURL, "/")).
		SetTimeout(resolved.Timeout).
		SetHeader("Content-Type", "application/json")
	if resolved.AccessKey != "" {
		client.SetAuthToken(resolved.AccessKey)
	}
	if resolved.WorkspaceID != "" {
		client.SetHeader("X-Workspace-Id", resolved.WorkspaceID)
	}

	return &HTTPEngine{client: client, log: log}, nil
}

var _ Engine = (*HTTPEngine)(nil)

// NewClient implements Engine by creating a server-side client resource
// holding the encrypt config.
func (e *HTTPEngine) NewClient(ctx context.Context, configJSON []byte) (EngineClient, error) {
	resp, err := e.request(ctx).
		SetBody(json.RawMessage(configJSON)).
		Post("/v2/clients")
	if err != nil {
		return nil, fmt.Errorf("protect: create engine client request: %w", err)
	}
	if resp.StatusCode() == http.StatusBadRequest || resp.StatusCode() == http.StatusUnprocessableEntity {
		return nil, fmt.Errorf("%w: %s", ErrConfigRejected, strings.TrimSpace(string(resp.Body())))
	}
	if err := engineHTTPError(resp); err != nil {
		return nil, err
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Body(), &created); err != nil {
		return nil, fmt.Errorf("protect: malformed create client response: %w", err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("protect: engine returned no client id")
	}
	e.log.Debug().Str("client_id", created.ID).Msg("engine client created")
	return &httpClient{engine: e, id: created.ID}, nil
}

// request starts a traceable engine request.
func (e *HTTPEngine) request(ctx context.Context) *resty.Request {
	return e.client.R().
		SetContext(ctx).
		SetHeader("X-Request-Id", uuid.NewString())
}

// engineHTTPError maps a non-2xx engine response to an error carrying the
// response body as the failure reason.
func engineHTTPError(resp *resty.Response) error {
	if resp.StatusCode() >= http.StatusOK && resp.StatusCode() < http.StatusMultipleChoices {
		return nil
	}
	body := strings.TrimSpace(string(resp.Body()))
	if body == "" {
		body = http.StatusText(resp.StatusCode())
	}
	return fmt.Errorf("protect: engine returned http %d: %s", resp.StatusCode(), body)
}

// httpClient is one server-side client resource.
type httpClient struct {
	engine *HTTPEngine
	id     string
	closed atomic.Bool
}

var _ EngineClient = (*httpClient)(nil)

// encryptRequest is the wire shape of a single encrypt call.
type encryptRequest struct {
	Plaintext string          `json:"plaintext"`
	Column    string          `json:"column"`
	Table     string          `json:"table"`
	Context   json.RawMessage `json:"context,omitempty"`
}

// decryptRequest is the wire shape of a single decrypt call.
type decryptRequest struct {
	Ciphertext string          `json:"ciphertext"`
	Context    json.RawMessage `json:"context,omitempty"`
}

func (c *httpClient) path(op string) string {
	if op == "" {
		return "/v2/clients/" + c.id
	}
	return "/v2/clients/" + c.id + "/" + op
}

func (c *httpClient) Encrypt(ctx context.Context, plaintext, column, table string, contextJSON []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrEngineClosed
	}
	resp, err := c.engine.request(ctx).
		SetBody(encryptRequest{
			Plaintext: plaintext,
			Column:    column,
			Table:     table,
			Context:   json.RawMessage(contextJSON),
		}).
		Post(c.path("encrypt"))
	if err != nil {
		return nil, fmt.Errorf("protect: encrypt request: %w", err)
	}
	if err := engineHTTPError(resp); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (c *httpClient) Decrypt(ctx context.Context, ciphertext string, contextJSON []byte) (string, error) {
	if c.closed.Load() {
		return "", ErrEngineClosed
	}
	resp, err := c.engine.request(ctx).
		SetBody(decryptRequest{
			Ciphertext: ciphertext,
			Context:    json.RawMessage(contextJSON),
		}).
		Post(c.path("decrypt"))
	if err != nil {
		return "", fmt.Errorf("protect: decrypt request: %w", err)
	}
	if err := engineHTTPError(resp); err != nil {
		return "", err
	}
	var result struct {
		Plaintext string `json:"plaintext"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return "", fmt.Errorf("protect: malformed decrypt response: %w", err)
	}
	return result.Plaintext, nil
}

func (c *httpClient) EncryptBulk(ctx context.Context, itemsJSON []byte) ([]byte, error) {
	return c.bulk(ctx, "encrypt-bulk", itemsJSON)
}

func (c *httpClient) DecryptBulk(ctx context.Context, itemsJSON []byte) ([]byte, error) {
	return c.bulk(ctx, "decrypt-bulk", itemsJSON)
}

func (c *httpClient) CreateSearchTerms(ctx context.Context, itemsJSON []byte) ([]byte, error) {
	return c.bulk(ctx, "search-terms", itemsJSON)
}

// bulk posts an items array and returns the engine's result array untouched.
func (c *httpClient) bulk(ctx context.Context, op string, itemsJSON []byte) ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrEngineClosed
	}
	resp, err := c.engine.request(ctx).
		SetBody(json.RawMessage(itemsJSON)).
		Post(c.path(op))
	if err != nil {
		return nil, fmt.Errorf("protect: %s request: %w", op, err)
	}
	if err := engineHTTPError(resp); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// Close destroys the server-side client resource. A second Close is a no-op,
// and an already-destroyed resource (404) counts as success.
func (c *httpClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	resp, err := c.engine.client.R().
		SetHeader("X-Request-Id", uuid.NewString()).
		Delete(c.path(""))
	if err != nil {
		return fmt.Errorf("protect: destroy engine client request: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil
	}
	if err := engineHTTPError(resp); err != nil {
		return err
	}
	c.engine.log.Debug().Str("client_id", c.id).Msg("engine client destroyed")
	return nil
}
