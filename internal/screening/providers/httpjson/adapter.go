// Package httpjson adapts JSON-over-HTTP verification backends (credit bureaus,
// employment and identity services) to the provider contract. Requests are
// signed with HMAC-SHA256 so backends can reject tampered or replayed calls.
package httpjson

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"propertyvet/internal/screening/models"
	"propertyvet/internal/screening/providers"
	"propertyvet/pkg/requestcontext"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	HeaderTimestamp = "X-Timestamp"
	HeaderSignature = "X-Signature"
	HeaderRequestID = "X-Request-ID"

	maxResponseBytes = 1 << 20
)

// Config describes one backend.
type Config struct {
	ID         models.ProviderID
	Endpoint   string
	HealthURL  string
	APIKey     string
	Secret     string
	Categories []models.Category
	// ScoreMin and ScoreMax describe the backend's native score range. When
	// both are zero scores are taken as already on the 0-850 scale.
	ScoreMin float64
	ScoreMax float64
}

// Adapter calls a single backend.
type Adapter struct {
	cfg    Config
	client *http.Client
	now    func() time.Time
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Adapter) { a.client = c }
}

// WithClock overrides the signing timestamp source.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

func New(cfg Config, opts ...Option) (*Adapter, error) {
	if cfg.ID == "" {
		return nil, errors.New("httpjson: provider id is required")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("httpjson %s: endpoint is required", cfg.ID)
	}
	if len(cfg.Categories) == 0 {
		return nil, fmt.Errorf("httpjson %s: at least one category is required", cfg.ID)
	}
	a := &Adapter{
		cfg: cfg,
		// No client timeout: the dispatcher bounds every call through ctx.
		client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *Adapter) ID() models.ProviderID { return a.cfg.ID }

func (a *Adapter) Capabilities() providers.Capabilities {
	return providers.Capabilities{
		Protocol:    providers.ProtocolHTTP,
		Categories:  a.cfg.Categories,
		Version:     "httpjson-v1",
		Description: "signed JSON backend at " + a.cfg.Endpoint,
	}
}

type checkPayload struct {
	RequestID string         `json:"request_id"`
	Tier      models.Tier    `json:"tier"`
	Subject   models.Subject `json:"subject"`
}

type checkResponse struct {
	Score      *float64                           `json:"score"`
	Confidence *float64                           `json:"confidence"`
	Flags      []string                           `json:"flags"`
	Verdicts   map[models.Category]models.Verdict `json:"verdicts"`
	Findings   map[string]any                     `json:"findings"`
}

func (a *Adapter) Check(ctx context.Context, req models.CheckRequest) (models.ProviderResult, error) {
	body, err := json.Marshal(checkPayload{RequestID: req.ID, Tier: req.Tier, Subject: req.Subject})
	if err != nil {
		return models.ProviderResult{}, providers.NewProviderError(providers.ErrorInternal, a.cfg.ID, "encode request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return models.ProviderResult{}, providers.NewProviderError(providers.ErrorInternal, a.cfg.ID, "build request", err)
	}
	a.sign(ctx, httpReq, req.ID, body)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return models.ProviderResult{}, providers.NewProviderError(providers.ErrorTimeout, a.cfg.ID, "request deadline exceeded", ctx.Err())
		}
		return models.ProviderResult{}, providers.NewProviderError(providers.ErrorProviderOutage, a.cfg.ID, "transport failure", err)
	}
	defer resp.Body.Close()

	if category, failed := classifyStatus(resp.StatusCode); failed {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return models.ProviderResult{}, providers.NewProviderError(category, a.cfg.ID, "backend returned "+resp.Status, nil)
	}

	var out checkResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		if ctx.Err() != nil {
			return models.ProviderResult{}, providers.NewProviderError(providers.ErrorTimeout, a.cfg.ID, "response read abandoned", ctx.Err())
		}
		return models.ProviderResult{}, providers.NewProviderError(providers.ErrorContractMismatch, a.cfg.ID, "malformed response body", err)
	}
	if out.Score == nil || out.Confidence == nil {
		return models.ProviderResult{}, providers.NewProviderError(providers.ErrorContractMismatch, a.cfg.ID, "response missing score or confidence", nil)
	}

	score := *out.Score
	if a.cfg.ScoreMin != 0 || a.cfg.ScoreMax != 0 {
		score = providers.ScaleTo850(score, a.cfg.ScoreMin, a.cfg.ScoreMax)
	}
	return models.ProviderResult{
		Provider:   a.cfg.ID,
		Status:     models.StatusOK,
		Score:      models.Float(score),
		Confidence: out.Confidence,
		Flags:      out.Flags,
		Verdicts:   out.Verdicts,
		Findings:   out.Findings,
	}, nil
}

// Health probes HealthURL when configured.
func (a *Adapter) Health(ctx context.Context) error {
	if a.cfg.HealthURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.HealthURL, nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return providers.NewProviderError(providers.ErrorProviderOutage, a.cfg.ID, "health probe failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return providers.NewProviderError(providers.ErrorProviderOutage, a.cfg.ID, "health probe returned "+resp.Status, nil)
	}
	return nil
}

func (a *Adapter) sign(ctx context.Context, r *http.Request, checkID string, body []byte) {
	ts := strconv.FormatInt(a.now().Unix(), 10)
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set(HeaderTimestamp, ts)
	r.Header.Set(HeaderSignature, Sign(a.cfg.Secret, ts, body))

	reqID := requestcontext.RequestID(ctx)
	if reqID == "" {
		reqID = checkID
	}
	r.Header.Set(HeaderRequestID, reqID)
	if a.cfg.APIKey != "" {
		r.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}
}

// Sign returns hex(HMAC-SHA256(secret, timestamp + "." + body)).
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature in constant time. Exposed for backends and tests.
func Verify(secret, timestamp string, body []byte, signature string) bool {
	expected, err := hex.DecodeString(Sign(secret, timestamp, body))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

func classifyStatus(code int) (providers.ErrorCategory, bool) {
	switch {
	case code >= 200 && code < 300:
		return "", false
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return providers.ErrorAuthentication, true
	case code == http.StatusNotFound:
		return providers.ErrorNotFound, true
	case code == http.StatusTooManyRequests:
		return providers.ErrorRateLimited, true
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return providers.ErrorTimeout, true
	case code >= 500:
		return providers.ErrorProviderOutage, true
	default:
		return providers.ErrorBadData, true
	}
}
