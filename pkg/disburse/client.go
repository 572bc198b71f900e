package disburse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/angelmondragon/vendor-payouts/pkg/config"
	pkgerrors "github.com/angelmondragon/vendor-payouts/pkg/errors"
	"github.com/angelmondragon/vendor-payouts/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"

	tokenPath   = "/oauth2/token"
	batchesPath = "/v1/disbursements/batches"

	tokenRetryAttempts  = 3
	statusRetryAttempts = 4
)

var (
	errClientIDRequired     = errors.New("provider client id is required")
	errClientSecretRequired = errors.New("provider client secret is required")
	errInvalidProviderEnv   = fmt.Errorf("provider environment must be %q or %q", sandboxEnv, productionEnv)
	errLoggerRequired       = errors.New("disburse logger is required")
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://api.sandbox.paycourier.io",
	productionEnv: "https://api.paycourier.io",
}

// Client submits vendor payout batches to the disbursement provider with
// centralized auth, logging, and error mapping. SubmitBatch is intentionally
// never retried inside a run; only read-only calls carry retry policies.
type Client struct {
	httpClient  *http.Client
	tokens      oauth2.TokenSource
	environment string
	baseURL     string
	logger      *logger.Logger
}

// NewClient initializes the provider wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.ProviderConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}

	clientID := strings.TrimSpace(cfg.ClientID)
	if clientID == "" {
		return nil, errClientIDRequired
	}
	clientSecret := strings.TrimSpace(cfg.ClientSecret)
	if clientSecret == "" {
		return nil, errClientSecretRequired
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = baseURLs[env]
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	creds := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     baseURL + tokenPath,
	}

	c := &Client{
		httpClient:  &http.Client{Timeout: timeout},
		tokens:      oauth2.ReuseTokenSource(nil, creds.TokenSource(ctx)),
		environment: env,
		baseURL:     baseURL,
		logger:      logg,
	}

	logg.Info(ctx, "disbursement client initialized")
	return c, nil
}

// Environment reports the normalized provider environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// SubmitBatch sends one disbursement batch to the provider. A batch with zero
// items is a no-op and returns an empty result without any network call.
// The provider dedupes by the batch idempotency key, which makes a resubmission
// on the next scheduled run safe even when this call's outcome was unknown.
func (c *Client) SubmitBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if len(req.Items) == 0 {
		c.log(ctx, "response", "submit_batch", map[string]any{"items": 0, "noop": true})
		return &BatchResult{}, nil
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch idempotency key is required")
	}

	c.log(ctx, "request", "submit_batch", map[string]any{
		"idempotency_key": req.IdempotencyKey,
		"items":           len(req.Items),
	})

	var result BatchResult
	if err := c.do(ctx, http.MethodPost, batchesPath, req.toWire(), &result); err != nil {
		c.log(ctx, "error", "submit_batch", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "submit_batch", map[string]any{
		"batch_id": result.BatchID,
		"items":    len(result.Items),
	})
	return &result, nil
}

// GetBatchStatus fetches the current state of a previously submitted batch.
// The call is read-only, so transient outages are retried with backoff.
func (c *Client) GetBatchStatus(ctx context.Context, batchID string) (*BatchResult, error) {
	if strings.TrimSpace(batchID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch id is required")
	}

	var result BatchResult
	backoff := retry.WithMaxRetries(statusRetryAttempts, retry.NewExponential(500*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.do(ctx, http.MethodGet, batchesPath+"/"+batchID, nil, &result)
		if err != nil && pkgerrors.As(err) != nil && pkgerrors.As(err).Code() == pkgerrors.CodeProviderUnavailable {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		c.log(ctx, "error", "get_batch_status", map[string]any{"batch_id": batchID, "error": err.Error()})
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode provider request")
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build provider request")
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, "provider request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, "read provider response")
	}

	if resp.StatusCode >= 500 {
		return pkgerrors.New(pkgerrors.CodeProviderUnavailable,
			fmt.Sprintf("provider returned status %d", resp.StatusCode)).
			WithDetails(string(raw))
	}
	if resp.StatusCode >= 400 {
		return pkgerrors.New(pkgerrors.CodeProviderRejected,
			fmt.Sprintf("provider rejected request with status %d", resp.StatusCode)).
			WithDetails(providerErrorDetail(raw))
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeProviderRejected, err, "decode provider response")
		}
	}
	return nil
}

// token fetches an access token, retrying transient failures. The underlying
// source caches the token for the lifetime of the client, which spans one run.
func (c *Client) token(ctx context.Context) (*oauth2.Token, error) {
	var token *oauth2.Token
	backoff := retry.WithMaxRetries(tokenRetryAttempts, retry.NewExponential(250*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		fetched, err := c.tokens.Token()
		if err != nil {
			return retry.RetryableError(err)
		}
		token = fetched
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeProviderUnavailable, err, "fetch provider token")
	}
	return token, nil
}

func providerErrorDetail(raw []byte) any {
	var payload struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Name == "" {
		return string(raw)
	}
	return payload
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("provider %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("provider %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"receiver", "email", "token", "secret"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = sandboxEnv
	}
	switch env {
	case sandboxEnv, productionEnv:
		return env, nil
	default:
		return "", errInvalidProviderEnv
	}
}
