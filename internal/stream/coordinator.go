// Package stream manages periodic per-model inference streams. Each
// model has at most one active subscription; starting a new one
// replaces the previous subscriber.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-bowyer/internal/infer"
	"github.com/23skdu/longbow-bowyer/internal/registry"
)

type subscription struct {
	ch   chan *infer.Result
	stop chan struct{}
}

// Coordinator drives one producer goroutine per subscribed model.
type Coordinator struct {
	exec     *infer.Executor
	interval time.Duration

	mu   sync.Mutex
	subs map[string]*subscription
}

func New(exec *infer.Executor, interval time.Duration) *Coordinator {
	return &Coordinator{
		exec:     exec,
		interval: interval,
		subs:     make(map[string]*subscription),
	}
}

// Start begins a periodic stream for modelID, replacing any existing
// subscription. When inputs is non-nil every tick runs a full inference
// pass with them; otherwise ticks emit heartbeat results carrying only
// the accelerator in use. The returned channel is closed when the
// stream ends, whether by Stop or because the model was disposed.
func (c *Coordinator) Start(modelID string, inputs map[string][]float64) (<-chan *infer.Result, error) {
	// Fail fast on unknown models rather than letting the producer
	// discover it on the first tick.
	if _, err := c.exec.Heartbeat(modelID); err != nil {
		return nil, err
	}

	sub := &subscription{
		ch:   make(chan *infer.Result, 1),
		stop: make(chan struct{}),
	}

	c.mu.Lock()
	if prev, ok := c.subs[modelID]; ok {
		close(prev.stop)
	}
	c.subs[modelID] = sub
	c.mu.Unlock()

	activeStreams.Inc()
	go c.produce(modelID, inputs, sub)
	return sub.ch, nil
}

// Stop ends the stream for modelID. Safe to call for models that have
// no active stream, and safe to call more than once.
func (c *Coordinator) Stop(modelID string) {
	c.mu.Lock()
	sub, ok := c.subs[modelID]
	if ok {
		delete(c.subs, modelID)
	}
	c.mu.Unlock()
	if ok {
		close(sub.stop)
	}
}

// Close stops every active stream. Used at shutdown.
func (c *Coordinator) Close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = make(map[string]*subscription)
	c.mu.Unlock()
	for _, sub := range subs {
		close(sub.stop)
	}
}

// Subscribe returns the result channel of the active stream for
// modelID, if any. The channel belongs to the single subscriber;
// results not consumed before the next tick are dropped.
func (c *Coordinator) Subscribe(modelID string) (<-chan *infer.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[modelID]
	if !ok {
		return nil, false
	}
	return sub.ch, true
}

// Active reports whether modelID currently has a subscription.
func (c *Coordinator) Active(modelID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[modelID]
	return ok
}

// produce owns sub.ch and is the only goroutine that closes it.
func (c *Coordinator) produce(modelID string, inputs map[string][]float64, sub *subscription) {
	defer close(sub.ch)
	defer activeStreams.Dec()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-sub.stop:
			return
		case <-ticker.C:
		}

		var (
			res *infer.Result
			err error
		)
		if inputs != nil {
			res, err = c.exec.Run(context.Background(), modelID, inputs)
		} else {
			res, err = c.exec.Heartbeat(modelID)
		}
		if err != nil {
			if errors.Is(err, registry.ErrModelNotFound) {
				log.Info().Str("model_id", modelID).Msg("stream ending, model disposed")
				c.remove(modelID, sub)
				return
			}
			tickFailures.Inc()
			log.Warn().Err(err).Str("model_id", modelID).Msg("stream tick failed")
			continue
		}

		select {
		case sub.ch <- res:
		default:
			droppedResults.Inc()
		}
	}
}

// remove clears the subscription entry only if it is still ours; a
// replacement started after our last tick must not be torn down.
func (c *Coordinator) remove(modelID string, sub *subscription) {
	c.mu.Lock()
	if cur, ok := c.subs[modelID]; ok && cur == sub {
		delete(c.subs, modelID)
	}
	c.mu.Unlock()
}
