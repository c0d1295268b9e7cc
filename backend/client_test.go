package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TFMV/ontograph/models"
	apperrors "github.com/TFMV/ontograph/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const description = `{
	"subject": {"kind": "iri", "value": "http://example.org/a"},
	"properties": [{"predicate": {"kind": "iri", "value": "http://example.org/p"},
		"objects": [{"kind": "iri", "value": "http://example.org/b"}]}]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", Timeout: time.Second}, zap.NewNop(), opts...)
}

func TestDescribeResource(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, describePath, r.URL.Path)
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, description)
	})

	desc, err := c.DescribeResource(context.Background(), models.NewIRI("http://example.org/a", ""))
	require.NoError(t, err)
	assert.Equal(t, 1, desc.Count())
	assert.Contains(t, gotQuery, "kind=iri")
	assert.Contains(t, gotQuery, "resource=http%3A%2F%2Fexample.org%2Fa")
}

func TestGraphAndClassModel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case graphModelPath:
			fmt.Fprint(w, `{"triples": [{"subject": {"kind": "iri", "value": "a"},
				"predicate": {"kind": "iri", "value": "p"}, "object": {"kind": "iri", "value": "b"}}]}`)
		case classModelPath:
			fmt.Fprint(w, `{"classes": [{"class": {"kind": "iri", "value": "A"}, "properties": []}]}`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	m, err := c.GraphModel(ctx, models.NewIRI("a", ""))
	require.NoError(t, err)
	assert.Len(t, m.Triples, 1)

	cm, err := c.ClassModel(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, cm.Classes, 1)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusNotFound, apperrors.IsNotFound},
		{http.StatusBadRequest, apperrors.IsValidation},
		{http.StatusInternalServerError, apperrors.IsUnavailable},
		{http.StatusTooManyRequests, apperrors.IsUnavailable},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			})
			_, err := c.DescribeResource(context.Background(), models.NewIRI("a", ""))
			require.Error(t, err)
			assert.True(t, tt.check(err), err.Error())
		})
	}
}

func TestInvalidPayloadIsValidationError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"subject": {"kind": "iri"}}`)
	})
	_, err := c.DescribeResource(context.Background(), models.NewIRI("a", ""))
	assert.True(t, apperrors.IsValidation(err))
}

func TestBreakerOpensOnFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(Config{
		BaseURL: srv.URL,
		Breaker: BreakerConfig{MaxRequests: 1, Timeout: time.Minute, FailureThreshold: 0.5, MinRequests: 2},
	}, nil)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := c.DescribeResource(ctx, models.NewIRI("a", ""))
		require.Error(t, err)
	}
	assert.Equal(t, "open", c.State())

	_, err := c.DescribeResource(ctx, models.NewIRI("a", ""))
	assert.True(t, apperrors.IsUnavailable(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestNotFoundDoesNotTripBreaker(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	for i := 0; i < 10; i++ {
		_, err := c.DescribeResource(context.Background(), models.NewIRI("a", ""))
		require.True(t, apperrors.IsNotFound(err))
	}
	assert.Equal(t, "closed", c.State())
}

func TestConcurrentRequestsShareRoundTrip(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		fmt.Fprint(w, description)
	})

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.DescribeResource(context.Background(), models.NewIRI("http://example.org/a", ""))
			errs <- err
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, description)
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.DescribeResource(ctx, models.NewIRI("a", ""))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestObserver(t *testing.T) {
	var ops []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, description)
	}, WithObserver(func(op string, _ time.Duration, err error) {
		assert.NoError(t, err)
		ops = append(ops, op)
	}))

	_, err := c.DescribeResource(context.Background(), models.NewIRI("a", ""))
	require.NoError(t, err)
	assert.Equal(t, []string{"describe"}, ops)
}
