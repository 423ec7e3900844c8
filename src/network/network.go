package network

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"market-relay/src/helpers"
	"market-relay/src/logger"
	"market-relay/src/models"
)

const (
	maxBodySize      = 8 << 20 // 8MB
	maxErrorBodySize = 4 << 10
	retryBaseDelay   = 500 * time.Millisecond
)

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status: %d", e.Code)
}

// -----------------------------------------------------------------------------

type AsyncNetworkManager struct {
	Config  *models.MConfig
	Client  *http.Client
	Logger  *logger.Logger
	Timeout time.Duration
}

// -----------------------------------------------------------------------------

func NewAsyncNetworkManager(cfg *models.MConfig, log *logger.Logger) *AsyncNetworkManager {
	timeout := cfg.UpstreamTimeout()
	return &AsyncNetworkManager{
		Config:  cfg,
		Client:  NewHTTPClient(timeout),
		Logger:  log,
		Timeout: timeout,
	}
}

// -----------------------------------------------------------------------------

// NewHTTPClient builds a client with explicit dial and TLS timeouts and an
// overall request timeout. http.DefaultClient has no timeout at all.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// -----------------------------------------------------------------------------

// Get performs a GET request with an explicit per-attempt timeout and
// optional retries. Cancelling ctx aborts the request and any pending retry.
func (nm *AsyncNetworkManager) Get(ctx context.Context, urlStr string, params map[string]string) ([]byte, error) {
	reqUrl, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}

	q := reqUrl.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	reqUrl.RawQuery = q.Encode()

	finalUrl := reqUrl.String()
	attempts := nm.Config.Upstream.MaxRetries + 1

	body, err := helpers.RetryWithBackoff(ctx, attempts, retryBaseDelay, func(attempt int) ([]byte, error) {
		body, err := nm.do(ctx, finalUrl)
		if err != nil && ctx.Err() == nil {
			nm.Logger.Debug("Request failed (attempt %d/%d): %v", attempt+1, attempts, err)
		}
		return body, err
	})
	if err != nil {
		return nil, helpers.NewNetworkError(err, "GET %s", reqUrl.Path)
	}
	return body, nil
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) do(ctx context.Context, finalUrl string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, nm.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, finalUrl, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := nm.Config.Upstream.UserAgent; ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := nm.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			nm.Logger.Warning("failed to close response body: %v", err)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &StatusError{Code: resp.StatusCode, Body: body}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
