package llm

import (
	"context"
	"log/slog"
	"math"
	"time"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 500 * time.Millisecond
)

// Retrying wraps a Provider (and optionally an Embedder) and retries
// TransientErrors with exponential backoff. PermanentErrors and context
// cancellation are returned immediately.
type Retrying struct {
	next        Provider
	embedder    Embedder
	maxAttempts int
	backoff     time.Duration
}

// NewRetrying wraps p. If p also implements Embedder, Embed is retried too.
// maxAttempts <= 0 uses the default of 3.
func NewRetrying(p Provider, maxAttempts int, initialBackoff time.Duration) *Retrying {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if initialBackoff <= 0 {
		initialBackoff = defaultInitialBackoff
	}
	r := &Retrying{next: p, maxAttempts: maxAttempts, backoff: initialBackoff}
	if e, ok := p.(Embedder); ok {
		r.embedder = e
	}
	return r
}

func (r *Retrying) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var out string
	err := r.do(ctx, "complete", func() error {
		var err error
		out, err = r.next.Complete(ctx, req)
		return err
	})
	return out, err
}

func (r *Retrying) DescribeImage(ctx context.Context, img Image, prompt string) (string, error) {
	var out string
	err := r.do(ctx, "describe_image", func() error {
		var err error
		out, err = r.next.DescribeImage(ctx, img, prompt)
		return err
	})
	return out, err
}

func (r *Retrying) Embed(ctx context.Context, text string) ([]float32, error) {
	if r.embedder == nil {
		return nil, &PermanentError{Op: "embed", Err: errNoEmbedder}
	}
	var out []float32
	err := r.do(ctx, "embed", func() error {
		var err error
		out, err = r.embedder.Embed(ctx, text)
		return err
	})
	return out, err
}

func (r *Retrying) do(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := range r.maxAttempts {
		err := fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) || ctx.Err() != nil {
			return err
		}
		lastErr = err
		if attempt < r.maxAttempts-1 {
			wait := time.Duration(float64(r.backoff) * math.Pow(2, float64(attempt)))
			slog.Debug("llm: transient failure, retrying", "op", op, "attempt", attempt+1, "wait", wait, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return lastErr
}
