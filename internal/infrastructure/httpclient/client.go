// Package httpclient is the JSON-over-HTTP helper shared by the REST adapters.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"solstream/internal/domain/model"
)

// ErrNotFound 服务端返回 404
var ErrNotFound = errors.New("http not found")

const (
	defaultTimeout  = 5 * time.Second
	maxBodyBytes    = 4 << 20
	breakerMinCalls = 5
	breakerRatio    = 0.6
)

// Client 带熔断的 JSON GET 客户端
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

func New(name, baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    newCircuitBreaker(name),
	}
}

func newCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= breakerMinCalls && failureRatio >= breakerRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
}

type response struct {
	status int
	body   []byte
}

// GetJSON GET baseURL+path 并解码到 out；429 -> ErrRateLimited，404 -> ErrNotFound
func (c *Client) GetJSON(ctx context.Context, path string, out interface{}) error {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, path)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", c.name, err)
	}
	if err != nil {
		return err
	}

	resp := res.(response)
	if resp.status == http.StatusNotFound {
		return fmt.Errorf("%s %s: %w", c.name, path, ErrNotFound)
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("%s decode: %w", c.name, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string) (response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return response{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return response{}, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return response{}, fmt.Errorf("%s http %d: %w", c.name, resp.StatusCode, model.ErrRateLimited)
	case resp.StatusCode == http.StatusNotFound:
		// 404 是正常业务结果，不计入熔断
		return response{status: resp.StatusCode}, nil
	case resp.StatusCode != http.StatusOK:
		return response{}, fmt.Errorf("%s http %d: %s", c.name, resp.StatusCode, truncate(body, 256))
	}
	return response{status: resp.StatusCode, body: body}, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
