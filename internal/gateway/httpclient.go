package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/homevault/payments/internal/domain/errors"
)

const maxResponseBodySize = 1 << 20

// apiClient is the shared outbound HTTP transport for gateway adapters.
// Network failures and 5xx responses surface as ErrGatewayUnavailable, 4xx
// responses as ErrGatewayRejected.
type apiClient struct {
	client  *http.Client
	baseURL string
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &apiClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// postJSON sends a JSON request and decodes the JSON response.
func (c *apiClient) postJSON(ctx context.Context, path string, headers map[string]string, body any) (map[string]any, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
	}
	return c.do(ctx, http.MethodPost, path, headers, "application/json", payload)
}

// postForm sends a form-encoded request (Stripe-style APIs).
func (c *apiClient) postForm(ctx context.Context, path string, headers map[string]string, form url.Values) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, path, headers, "application/x-www-form-urlencoded", []byte(form.Encode()))
}

func (c *apiClient) do(ctx context.Context, method, path string, headers map[string]string, contentType string, payload []byte) (map[string]any, error) {
	var decoded map[string]any

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("build request: %w", err))
			}
			if len(payload) > 0 {
				req.Header.Set("Content-Type", contentType)
			}
			req.Header.Set("Accept", "application/json")
			for k, v := range headers {
				req.Header.Set(k, v)
			}

			resp, err := c.client.Do(req)
			if err != nil {
				return fmt.Errorf("%w: %v", errors.ErrGatewayUnavailable, err)
			}
			defer resp.Body.Close()

			raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
			if err != nil {
				return fmt.Errorf("%w: read response: %v", errors.ErrGatewayUnavailable, err)
			}

			if resp.StatusCode >= 500 {
				return fmt.Errorf("%w: status %d", errors.ErrGatewayUnavailable, resp.StatusCode)
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(&statusError{code: resp.StatusCode, body: raw})
			}

			decoded = make(map[string]any)
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &decoded); err != nil {
					return retry.Unrecoverable(fmt.Errorf("decode response: %w", err))
				}
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		var se *statusError
		if stderrors.As(err, &se) {
			// Keep the statusError in the chain so token-based adapters can
			// spot a 401 and invalidate cached credentials.
			return nil, fmt.Errorf("%w: %w", errors.ErrGatewayRejected, se)
		}
		return nil, err
	}
	return decoded, nil
}

// statusError carries a 4xx response until it is classified.
type statusError struct {
	code int
	body []byte
}

func (e *statusError) Error() string {
	msg := string(e.body)
	if len(msg) > 512 {
		msg = msg[:512]
	}
	return fmt.Sprintf("gateway returned status %d: %s", e.code, msg)
}

// isUnauthorized reports whether the error is a 401 from the provider,
// used by token-based adapters to invalidate cached credentials.
func isUnauthorized(err error) bool {
	var se *statusError
	return stderrors.As(err, &se) && se.code == http.StatusUnauthorized
}
