package speech

import (
	"context"
	"errors"
	"log"
	"math"
	"math/rand"
	"time"

	"golang.org/x/time/rate"
)

const retryJitterFactor = 0.25

// RetryPolicy bounds how transient provider failures are retried.
type RetryPolicy struct {
	// MaxAttempts counts every call, the first included.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Factor      float64
}

// DefaultRetryPolicy makes three attempts 250ms, 500ms apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 250 * time.Millisecond, MaxDelay: 2 * time.Second, Factor: 2}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Factor <= 0 {
		p.Factor = 2
	}
	return p
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.BaseDelay == 0 {
		return 0
	}
	delay := float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt))
	if max := float64(p.MaxDelay); max > 0 && delay > max {
		delay = max
	}
	jitter := delay * retryJitterFactor * (rand.Float64()*2 - 1)
	return time.Duration(math.Max(0, delay+jitter))
}

// Observer receives retry and failure events; metrics.Collector implements it.
type Observer interface {
	SpeechRetry(op string)
	SpeechFailure(op string)
}

// Resilient wraps a Gateway with bounded retry and request pacing. Recognition
// timeouts are returned immediately since the candidate's window has already closed.
type Resilient struct {
	inner    Gateway
	policy   RetryPolicy
	limiter  *rate.Limiter
	observer Observer
}

// ResilientOption configures a Resilient gateway.
type ResilientOption func(*Resilient)

// WithRateLimit paces outbound provider calls. perSecond <= 0 disables pacing.
func WithRateLimit(perSecond float64, burst int) ResilientOption {
	return func(r *Resilient) {
		if perSecond <= 0 {
			r.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithObserver reports retries and terminal failures.
func WithObserver(o Observer) ResilientOption {
	return func(r *Resilient) { r.observer = o }
}

// NewResilient wraps inner with the given retry policy.
func NewResilient(inner Gateway, policy RetryPolicy, opts ...ResilientOption) *Resilient {
	r := &Resilient{inner: inner, policy: policy.normalized()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resilient) Synthesize(ctx context.Context, text string, voice VoiceProfile) (AudioHandle, error) {
	var out AudioHandle
	err := r.do(ctx, "synthesize", func(ctx context.Context) error {
		h, err := r.inner.Synthesize(ctx, text, voice)
		if err == nil {
			out = h
		}
		return err
	})
	return out, err
}

func (r *Resilient) Transcribe(ctx context.Context, audio AudioStream, timeout time.Duration) (Recognition, error) {
	var out Recognition
	err := r.do(ctx, "transcribe", func(ctx context.Context) error {
		rec, err := r.inner.Transcribe(ctx, audio, timeout)
		if err == nil {
			out = rec
		}
		return err
	})
	return out, err
}

func (r *Resilient) do(ctx context.Context, op string, call func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		err := call(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrRecognitionTimeout) || !IsTransient(err) || ctx.Err() != nil {
			break
		}
		if attempt == r.policy.MaxAttempts-1 {
			break
		}
		if r.observer != nil {
			r.observer.SpeechRetry(op)
		}
		delay := r.policy.backoff(attempt)
		log.Printf("speech: %s attempt %d/%d failed: %v (retrying in %s)", op, attempt+1, r.policy.MaxAttempts, err, delay)
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	if r.observer != nil && !errors.Is(lastErr, ErrRecognitionTimeout) {
		r.observer.SpeechFailure(op)
	}
	return lastErr
}
