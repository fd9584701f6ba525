package service

import (
	"context"
	"time"

	"github.com/helixml/branchscope/domain/status"
)

// Publisher defaults.
const (
	DefaultStreamInterval = 500 * time.Millisecond
	DefaultAwaitSamples   = 5
	DefaultAwaitEvery     = time.Second
	DefaultAwaitBound     = 9 * time.Second
)

// Publisher exposes statuses to observers by sampling the status map.
type Publisher struct {
	statuses     *status.Map
	interval     time.Duration
	awaitSamples int
	awaitEvery   time.Duration
	awaitBound   time.Duration
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithStreamInterval sets how often Subscribe samples the map.
func WithStreamInterval(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithAwait sets how Await samples: samples reads spaced every apart,
// all within bound.
func WithAwait(samples int, every, bound time.Duration) PublisherOption {
	return func(p *Publisher) {
		if samples > 0 {
			p.awaitSamples = samples
		}
		if every > 0 {
			p.awaitEvery = every
		}
		if bound > 0 {
			p.awaitBound = bound
		}
	}
}

// NewPublisher creates a Publisher.
func NewPublisher(statuses *status.Map, opts ...PublisherOption) *Publisher {
	p := &Publisher{
		statuses:     statuses,
		interval:     DefaultStreamInterval,
		awaitSamples: DefaultAwaitSamples,
		awaitEvery:   DefaultAwaitEvery,
		awaitBound:   DefaultAwaitBound,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Current returns the status for key.
func (p *Publisher) Current(key string) (status.Status, bool) {
	return p.statuses.Get(key)
}

// Subscribe streams every observed change for key. The channel closes after
// a terminal status has been delivered, when key has no status, or when ctx
// ends.
func (p *Publisher) Subscribe(ctx context.Context, key string) <-chan status.Status {
	out := make(chan status.Status, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		var last status.Status
		for {
			s, ok := p.statuses.Get(key)
			if !ok {
				return
			}
			if !s.Equal(last) {
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
				last = s
				switch s.Kind() {
				case status.KindDone, status.KindError:
					return
				case status.KindReady, status.KindInProgress, status.KindCloned, status.KindPrevious:
				}
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out
}

// Await samples the status of key a bounded number of times. It returns
// the terminal status as soon as one is seen; otherwise the last sample
// together with ErrStillProcessing. It never waits longer than the bound.
func (p *Publisher) Await(ctx context.Context, key string) (status.Status, error) {
	ctx, cancel := context.WithTimeout(ctx, p.awaitBound)
	defer cancel()

	var last status.Status
	for i := range p.awaitSamples {
		if s, ok := p.statuses.Get(key); ok {
			last = s
			switch s.Kind() {
			case status.KindDone, status.KindError:
				return s, nil
			case status.KindReady, status.KindInProgress, status.KindCloned, status.KindPrevious:
			}
		}
		if i == p.awaitSamples-1 {
			break
		}
		select {
		case <-ctx.Done():
			return last, ErrStillProcessing
		case <-time.After(p.awaitEvery):
		}
	}
	return last, ErrStillProcessing
}
