// Package kraken implements the GraphQL client for the Octopus Energy Japan
// Kraken API: credential/token lifecycle, account discovery and the
// comprehensive snapshot query.
package kraken

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oejp/kraken-bridge/internal/domain"
	"github.com/oejp/kraken-bridge/internal/infra/observability"
	"github.com/oejp/kraken-bridge/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("kraken")

// DefaultEndpointURL is the production Kraken GraphQL endpoint.
const DefaultEndpointURL = "https://api.oejp-kraken.energy/v1/graphql/"

// Config carries the immutable credentials and the client's collaborators.
type Config struct {
	Email       string
	Password    string
	EndpointURL string

	HTTPClient *http.Client
	Breaker    *gobreaker.CircuitBreaker
	Metrics    *observability.Metrics
	Logger     *zap.Logger

	// Now is the clock used for token expiry checks. Defaults to time.Now;
	// overridden in tests.
	Now func() time.Time
}

// Client talks to the Kraken API for a single account. It owns the session
// token exclusively and keeps it valid across calls. Not safe for concurrent
// use; the refresh coordinator serializes access.
type Client struct {
	email       string
	password    string
	endpointURL string

	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time

	token sessionToken
}

// NewClient creates a Kraken client from the given config, filling in
// defaults for anything unset.
func NewClient(cfg Config) *Client {
	if cfg.EndpointURL == "" {
		cfg.EndpointURL = DefaultEndpointURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Breaker == nil {
		cfg.Breaker = resilience.NewCircuitBreaker("kraken")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Client{
		email:       cfg.Email,
		password:    cfg.Password,
		endpointURL: cfg.EndpointURL,
		httpClient:  cfg.HTTPClient,
		cb:          cfg.Breaker,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type postResult struct {
	status int
	body   []byte
}

// post sends one GraphQL request and returns the HTTP status and raw body.
// The circuit breaker guards transport failures only; HTTP error statuses
// pass through for the caller to interpret. Transport failures surface as
// ErrNetwork and are never retried here.
func (c *Client) post(ctx context.Context, op string, reqBody graphQLRequest, authed bool) (int, []byte, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if authed {
		req.Header.Set("authorization", "JWT "+c.token.value)
	}

	result, err := c.cb.Execute(func() (any, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return postResult{status: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		return 0, nil, &domain.ErrNetwork{Operation: op, Err: err}
	}

	res := result.(postResult)
	return res.status, res.body, nil
}

// Authenticate obtains a fresh session token with the stored credentials.
func (c *Client) Authenticate(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Kraken.Authenticate")
	defer span.End()

	c.logger.Debug("requesting new session token")

	status, body, err := c.post(ctx, "obtainKrakenToken", graphQLRequest{
		Query: obtainTokenMutation,
		Variables: map[string]any{
			"input": map[string]any{"email": c.email, "password": c.password},
		},
	}, false)
	if err != nil {
		return &domain.ErrAuth{Reason: "auth endpoint unreachable", Err: err}
	}
	if status >= 400 {
		return &domain.ErrAuth{Reason: fmt.Sprintf("token request returned status %d", status)}
	}

	var env struct {
		Data struct {
			ObtainKrakenToken struct {
				Token string `json:"token"`
			} `json:"obtainKrakenToken"`
		} `json:"data"`
		Errors []domain.GraphQLError `json:"errors"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return &domain.ErrAuth{Reason: "malformed token response", Err: err}
	}
	if len(env.Errors) > 0 {
		return &domain.ErrAuth{Reason: env.Errors[0].Message}
	}
	if env.Data.ObtainKrakenToken.Token == "" {
		return &domain.ErrAuth{Reason: "empty token in response"}
	}

	c.token.value = env.Data.ObtainKrakenToken.Token
	c.token.expiresAt = tokenExpiry(c.token.value, c.now())
	c.logger.Debug("session token obtained", zap.Time("expires_at", c.token.expiresAt))
	return nil
}

// ensureValidToken re-authenticates when no unexpired token is held.
// Called before every authenticated request.
func (c *Client) ensureValidToken(ctx context.Context) error {
	if c.token.valid(c.now()) {
		return nil
	}
	if c.token.value != "" && c.metrics != nil {
		c.metrics.IncrReauthentication()
	}
	return c.Authenticate(ctx)
}

// reauthenticate drops the current token and obtains a fresh one. Used on
// an expiry signal before the single replay.
func (c *Client) reauthenticate(ctx context.Context) error {
	c.logger.Info("session token rejected by provider, re-authenticating")
	c.token.clear()
	if c.metrics != nil {
		c.metrics.IncrReauthentication()
	}
	return c.Authenticate(ctx)
}

// GetAccountNumber returns the first account number on the authenticated
// viewer. On a JWT-expiry signal it re-authenticates once and replays the
// identical query once.
func (c *Client) GetAccountNumber(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "Kraken.GetAccountNumber")
	defer span.End()

	if err := c.ensureValidToken(ctx); err != nil {
		return "", err
	}

	number, expired, err := c.fetchAccountNumber(ctx)
	if err != nil {
		return "", err
	}
	if expired {
		if err := c.reauthenticate(ctx); err != nil {
			return "", err
		}
		number, _, err = c.fetchAccountNumber(ctx)
		if err != nil {
			return "", err
		}
	}
	if number == "" {
		return "", &domain.ErrAccountNotFound{}
	}
	return number, nil
}

func (c *Client) fetchAccountNumber(ctx context.Context) (number string, expired bool, err error) {
	status, body, err := c.post(ctx, "accountViewer", graphQLRequest{Query: accountViewerQuery}, true)
	if err != nil {
		return "", false, err
	}
	if status == http.StatusUnauthorized {
		return "", true, nil
	}

	var env struct {
		Data struct {
			Viewer struct {
				Accounts []struct {
					Number string `json:"number"`
				} `json:"accounts"`
			} `json:"viewer"`
		} `json:"data"`
		Errors []domain.GraphQLError `json:"errors"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return "", false, &domain.ErrAccountNotFound{Detail: "malformed response"}
	}
	for _, ge := range env.Errors {
		if ge.IsTokenExpirySignal() {
			return "", true, nil
		}
	}
	if len(env.Data.Viewer.Accounts) == 0 {
		return "", false, nil
	}
	return env.Data.Viewer.Accounts[0].Number, false, nil
}

// GetAccountData runs the comprehensive query for the inclusive UTC window
// [start, end] and returns the decoded account subtree. Retry policy: at
// most one retry total, triggered by HTTP 401 or a JWT-expiry signal in the
// GraphQL errors array; the token is re-obtained and the identical request
// replayed once. Non-expiry GraphQL errors fail immediately.
func (c *Client) GetAccountData(ctx context.Context, accountNumber string, start, end time.Time) (*domain.AccountSnapshot, error) {
	ctx, span := tracer.Start(ctx, "Kraken.GetAccountData")
	defer span.End()
	span.SetAttributes(attribute.String("account.number", accountNumber))

	if err := c.ensureValidToken(ctx); err != nil {
		return nil, err
	}

	req := graphQLRequest{
		Query: comprehensiveAccountQuery,
		Variables: map[string]any{
			"accountNumber": accountNumber,
			"startTime":     start.UTC().Format(time.RFC3339),
			"endTime":       end.UTC().Format(time.RFC3339),
		},
	}

	snap, expired, gqlErrs, err := c.fetchAccountData(ctx, req)
	if err != nil {
		return nil, err
	}
	if expired {
		if err := c.reauthenticate(ctx); err != nil {
			return nil, err
		}
		snap, expired, gqlErrs, err = c.fetchAccountData(ctx, req)
		if err != nil {
			return nil, err
		}
		if expired {
			return nil, &domain.ErrDataFetch{Operation: "comprehensive", Errors: gqlErrs}
		}
	}
	if len(gqlErrs) > 0 {
		return nil, &domain.ErrDataFetch{Operation: "comprehensive", Errors: gqlErrs}
	}
	if snap == nil {
		return nil, &domain.ErrDataFetch{Operation: "comprehensive", Err: fmt.Errorf("missing account in response")}
	}
	return snap, nil
}

func (c *Client) fetchAccountData(ctx context.Context, req graphQLRequest) (snap *domain.AccountSnapshot, expired bool, gqlErrs []domain.GraphQLError, err error) {
	status, body, err := c.post(ctx, "comprehensive", req, true)
	if err != nil {
		return nil, false, nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, true, nil, nil
	}
	if status >= 400 {
		return nil, false, nil, &domain.ErrDataFetch{
			Operation: "comprehensive",
			Err:       fmt.Errorf("http status %d", status),
		}
	}

	var env struct {
		Data struct {
			Account *domain.AccountSnapshot `json:"account"`
		} `json:"data"`
		Errors []domain.GraphQLError `json:"errors"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, false, nil, &domain.ErrDataFetch{Operation: "comprehensive", Err: err}
	}
	for _, ge := range env.Errors {
		if ge.IsTokenExpirySignal() {
			return nil, true, env.Errors, nil
		}
	}
	if len(env.Errors) > 0 {
		return nil, false, env.Errors, nil
	}
	return env.Data.Account, false, nil, nil
}
