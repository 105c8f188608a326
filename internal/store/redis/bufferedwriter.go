package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"hijackwatch/internal/model"
)

// pendingWrite is a write buffered while the circuit was open.
type pendingWrite struct {
	WriteType string // "force_reading", "trade_signal"
	Data      []byte // JSON-encoded payload
}

// BufferedWriter wraps a Writer with a circuit breaker. While the circuit
// is open, force readings and signals are buffered locally and replayed
// once the circuit closes, so a Redis outage never blocks the scan loop.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int // oldest writes are dropped past this

	// Callbacks
	OnBuffer func()          // a write was buffered (for metrics)
	OnFlush  func(count int) // buffered writes were replayed
}

// NewBufferedWriter wraps w. maxBufferSize <= 0 defaults to 10000.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]pendingWrite, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Chain onto any existing callback and flush when the circuit closes.
	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// WriteReading writes a force reading through the circuit breaker. While
// the circuit is open the reading is buffered, not lost.
func (bw *BufferedWriter) WriteReading(r model.ForceReading) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.writeReading(bw.ctx, r)
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite("force_reading", r)
		return nil
	}
	return err
}

// PublishSignal publishes a fused trade signal through the circuit breaker.
func (bw *BufferedWriter) PublishSignal(sig model.TradeSignal) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.publishSignal(bw.ctx, sig)
	})
	if err == ErrCircuitOpen {
		bw.bufferWrite("trade_signal", sig)
		return nil
	}
	return err
}

func (bw *BufferedWriter) bufferWrite(writeType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[buffered-writer] marshal error: %v", err)
		return
	}

	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, pendingWrite{WriteType: writeType, Data: data})

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered writes through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([]pendingWrite, 0, 256)
	bw.mu.Unlock()

	flushed := 0
	for _, pw := range toFlush {
		switch pw.WriteType {
		case "force_reading":
			var r model.ForceReading
			if json.Unmarshal(pw.Data, &r) == nil {
				bw.writer.writeReading(bw.ctx, r)
			}
		case "trade_signal":
			var sig model.TradeSignal
			if json.Unmarshal(pw.Data, &sig) == nil {
				bw.writer.publishSignal(bw.ctx, sig)
			}
		}
		flushed++
	}

	log.Printf("[buffered-writer] flushed %d buffered writes", flushed)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered writes waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Underlying returns the wrapped Redis writer for direct access.
func (bw *BufferedWriter) Underlying() *Writer {
	return bw.writer
}
