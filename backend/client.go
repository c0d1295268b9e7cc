// Package backend is the HTTP client for the resource service that feeds the
// graph engine.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/TFMV/ontograph/ingest"
	"github.com/TFMV/ontograph/models"
	apperrors "github.com/TFMV/ontograph/pkg/errors"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	describePath    = "/resources/describe"
	graphModelPath  = "/graph/model"
	classModelPath  = "/graph/classes"
	maxErrorBodyLen = 4096
)

// BreakerConfig configures the circuit breaker guarding the backend.
type BreakerConfig struct {
	MaxRequests      uint32        `yaml:"max_requests" json:"max_requests" toml:"max_requests"`
	Interval         time.Duration `yaml:"interval" json:"interval" toml:"interval"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout" toml:"timeout"`
	FailureThreshold float64       `yaml:"failure_threshold" json:"failure_threshold" toml:"failure_threshold" validate:"gt=0,lte=1"`
	MinRequests      uint32        `yaml:"min_requests" json:"min_requests" toml:"min_requests"`
}

// DefaultBreakerConfig returns the breaker settings used when none are
// configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// Config configures the client.
type Config struct {
	BaseURL string        `yaml:"base_url" json:"base_url" toml:"base_url" validate:"omitempty,url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout" toml:"timeout"`
	Breaker BreakerConfig `yaml:"breaker" json:"breaker" toml:"breaker"`
}

// Observer is notified of every completed backend call.
type Observer func(operation string, elapsed time.Duration, err error)

// Client fetches resource descriptions, graph models and class models.
// Concurrent identical requests share one round trip.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker
	group      singleflight.Group
	observer   Observer
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithObserver registers a callback for call latency and outcome.
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// NewClient creates a client for the backend at cfg.BaseURL.
func NewClient(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	bc := cfg.Breaker
	if bc.FailureThreshold <= 0 {
		bc = DefaultBreakerConfig()
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "resource-backend",
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < bc.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// Only an unreachable or failing backend counts against the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || !apperrors.IsUnavailable(err)
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DescribeResource fetches the predicate/object view of r.
func (c *Client) DescribeResource(ctx context.Context, r *models.Resource) (*ingest.Description, error) {
	body, err := c.fetch(ctx, "describe", describePath, r)
	if err != nil {
		return nil, err
	}
	return ingest.JSONDecoder.DecodeDescription(body)
}

// GraphModel fetches the source/link/target triples around r.
func (c *Client) GraphModel(ctx context.Context, r *models.Resource) (*ingest.GraphModel, error) {
	body, err := c.fetch(ctx, "graph_model", graphModelPath, r)
	if err != nil {
		return nil, err
	}
	return ingest.JSONDecoder.DecodeGraphModel(body)
}

// ClassModel fetches the UML class model of the ontology r belongs to.
func (c *Client) ClassModel(ctx context.Context, r *models.Resource) (*ingest.ClassModel, error) {
	body, err := c.fetch(ctx, "class_model", classModelPath, r)
	if err != nil {
		return nil, err
	}
	return ingest.JSONDecoder.DecodeClassModel(body)
}

// State reports the circuit breaker state.
func (c *Client) State() string {
	return c.cb.State().String()
}

func (c *Client) fetch(ctx context.Context, op, path string, r *models.Resource) ([]byte, error) {
	u := c.baseURL + path
	if r != nil {
		q := url.Values{}
		q.Set("resource", r.Value)
		q.Set("kind", string(r.Kind))
		u += "?" + q.Encode()
	}

	// The shared round trip outlives any single caller; callers stop waiting
	// when their own context ends.
	ch := c.group.DoChan(u, func() (any, error) {
		start := time.Now()
		body, err := c.cb.Execute(func() (any, error) {
			return c.get(context.WithoutCancel(ctx), u)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = apperrors.NewUnavailable("resource backend is unavailable", err)
		}
		if c.observer != nil {
			c.observer(op, time.Since(start), err)
		}
		if err != nil {
			c.logger.Debug("backend call failed", zap.String("operation", op), zap.String("url", u), zap.Error(err))
			return nil, err
		}
		return body, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		body, ok := res.Val.([]byte)
		if !ok {
			return nil, apperrors.NewInternal(fmt.Sprintf("unexpected response type %T", res.Val), nil)
		}
		return body, nil
	}
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apperrors.NewInternal("create request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewUnavailable("execute request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		msg := fmt.Sprintf("backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, apperrors.NewNotFound(msg)
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return nil, apperrors.NewUnavailable(msg, nil)
		default:
			return nil, apperrors.NewValidation(msg)
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.NewUnavailable("read response", err)
	}
	return body, nil
}
