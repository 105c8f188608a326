// Package bus broadcasts observations from a single input channel to N
// subscribers (force window store, archive writer, latest-price writer).
package bus

import (
	"context"
	"log"
	"sync"

	"hijackwatch/internal/model"
)

// FanOut broadcasts observations from one input channel to all subscribers.
// If a subscriber's channel is full, the observation is dropped for that
// subscriber so a slow consumer never blocks the pipeline.
type FanOut struct {
	mu      sync.RWMutex
	names   []string
	outputs []chan model.Observation
	bufSize int

	// OnDrop is called with the subscriber name when an observation is
	// dropped for that subscriber.
	OnDrop func(subscriber string)
}

// New creates a FanOut with the given buffer size for subscriber channels.
func New(outputBufferSize int) *FanOut {
	return &FanOut{
		bufSize: outputBufferSize,
	}
}

// Subscribe registers a named subscriber and returns its channel.
func (f *FanOut) Subscribe(name string) <-chan model.Observation {
	ch := make(chan model.Observation, f.bufSize)
	f.mu.Lock()
	f.names = append(f.names, name)
	f.outputs = append(f.outputs, ch)
	f.mu.Unlock()
	return ch
}

// Run reads from the input channel and fans out to all subscribers.
// Blocks until ctx is cancelled or input is closed. Subscriber channels are
// closed on exit.
func (f *FanOut) Run(ctx context.Context, input <-chan model.Observation) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case o, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for i, ch := range f.outputs {
				select {
				case ch <- o:
				default:
					if f.OnDrop != nil {
						f.OnDrop(f.names[i])
					} else {
						log.Printf("[bus] dropped observation for slow subscriber %s", f.names[i])
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}
