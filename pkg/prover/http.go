package prover

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shadowdrop/shadowdrop-go/pkg/types"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides default retry settings
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     5,
	InitialBackoff:  100 * time.Millisecond,
	MaxBackoff:      5 * time.Second,
	BackoffMultiple: 2.0,
}

var _ IProver = (*HTTPProver)(nil)

// HTTPProver talks to a proving service over HTTP. Proof generation is
// expensive on the far end, so requests go through a local rate
// limiter before they ever hit the wire; transient failures are
// retried with exponential backoff.
type HTTPProver struct {
	baseURL     string
	httpClient  *http.Client
	limiter     *rate.Limiter
	retryConfig RetryConfig
	logger      *zap.Logger
}

// HTTPProverConfig configures the prover client.
type HTTPProverConfig struct {
	// BaseURL is the proving service address, e.g. "http://prover:8081".
	BaseURL string
	// RequestTimeout bounds a single proving call. Proofs take seconds,
	// not milliseconds; zero defaults to 60s.
	RequestTimeout time.Duration
	// RequestsPerSecond throttles outbound proof requests. Zero
	// defaults to 2/s with a burst of 4.
	RequestsPerSecond float64
	// Retry overrides DefaultRetryConfig when MaxAttempts > 0.
	Retry RetryConfig
}

// NewHTTPProver creates a prover client.
func NewHTTPProver(cfg *HTTPProverConfig, logger *zap.Logger) (*HTTPProver, error) {
	if cfg == nil || cfg.BaseURL == "" {
		return nil, fmt.Errorf("prover base URL cannot be empty")
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	rps := cfg.RequestsPerSecond
	if rps == 0 {
		rps = 2
	}

	retryConfig := cfg.Retry
	if retryConfig.MaxAttempts == 0 {
		retryConfig = DefaultRetryConfig
	}

	return &HTTPProver{
		baseURL:     cfg.BaseURL,
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(rps), 4),
		retryConfig: retryConfig,
		logger:      logger,
	}, nil
}

// Prove requests a proof from the proving service, with rate limiting
// and bounded retries. The request carries the recipient's secret; it
// is never logged here, only sent.
func (h *HTTPProver) Prove(ctx context.Context, req *ProofRequest) (*Proof, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil proof request", types.ErrInvalidInput)
	}

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal proof request: %w", err)
	}

	var lastErr error
	backoff := h.retryConfig.InitialBackoff
	for attempt := 0; attempt < h.retryConfig.MaxAttempts; attempt++ {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrProofServiceUnavailable, err)
		}

		proof, retryable, err := h.proveOnce(ctx, data)
		if err == nil {
			return proof, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}

		h.logger.Sugar().Warnw("Proof request failed, retrying",
			"campaign", req.CampaignID.Hex(), "attempt", attempt+1, "error", err)

		if attempt < h.retryConfig.MaxAttempts-1 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", types.ErrProofServiceUnavailable, ctx.Err())
			}
			backoff = time.Duration(float64(backoff) * h.retryConfig.BackoffMultiple)
			if backoff > h.retryConfig.MaxBackoff {
				backoff = h.retryConfig.MaxBackoff
			}
		}
	}

	return nil, fmt.Errorf("%w: giving up after %d attempts: %v",
		types.ErrProofServiceUnavailable, h.retryConfig.MaxAttempts, lastErr)
}

// proveOnce performs a single proving call. The second return value
// says whether the failure is worth retrying.
func (h *HTTPProver) proveOnce(ctx context.Context, body []byte) (*Proof, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/prove", bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("failed to build proof request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", types.ErrProofServiceUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, true, fmt.Errorf("%w: reading response: %v", types.ErrProofServiceUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		// fallthrough to decode
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("%w: prover returned status %d", types.ErrProofServiceUnavailable, resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("prover rejected request with status %d: %s", resp.StatusCode, respBody)
	}

	var proof Proof
	if err := json.Unmarshal(respBody, &proof); err != nil {
		return nil, false, fmt.Errorf("%w: undecodable prover response: %v", types.ErrMalformedProof, err)
	}

	if err := ValidateProof(&proof); err != nil {
		return nil, false, err
	}
	return &proof, false, nil
}
