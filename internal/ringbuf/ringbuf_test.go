package ringbuf

import (
	"sync"
	"testing"
	"time"

	"hijackwatch/internal/model"
)

func obs(ticker string, value float64) model.Observation {
	return model.Observation{Ticker: ticker, Value: value, Volume: 1, TS: time.Now().UTC()}
}

func TestPushPop(t *testing.T) {
	r := New(4)
	if !r.Push(obs("BTC", 100)) {
		t.Fatal("push to empty ring failed")
	}
	if !r.Push(obs("ETH", 200)) {
		t.Fatal("push failed")
	}
	if r.Len() != 2 {
		t.Errorf("expected len 2, got %d", r.Len())
	}

	o, ok := r.Pop()
	if !ok || o.Ticker != "BTC" || o.Value != 100 {
		t.Errorf("unexpected first pop: %+v ok=%v", o, ok)
	}
	o, ok = r.Pop()
	if !ok || o.Ticker != "ETH" {
		t.Errorf("unexpected second pop: %+v ok=%v", o, ok)
	}
	if _, ok := r.Pop(); ok {
		t.Error("pop from empty ring should fail")
	}
}

func TestOverflow(t *testing.T) {
	r := New(2) // exact power of two, capacity 2
	r.Push(obs("A", 1))
	r.Push(obs("A", 2))
	if r.Push(obs("A", 3)) {
		t.Error("push to full ring should fail")
	}
	if r.Overflow() != 1 {
		t.Errorf("expected overflow 1, got %d", r.Overflow())
	}
}

func TestCapacityRounding(t *testing.T) {
	r := New(5)
	if r.Cap() != 8 {
		t.Errorf("expected capacity rounded to 8, got %d", r.Cap())
	}
	r = New(0)
	if r.Cap() != 2 {
		t.Errorf("expected minimum capacity 2, got %d", r.Cap())
	}
}

func TestSPSCConcurrent(t *testing.T) {
	r := New(1024)
	const n = 10000

	var wg sync.WaitGroup
	wg.Add(1)
	received := 0
	go func() {
		defer wg.Done()
		for received < n {
			if _, ok := r.Pop(); ok {
				received++
			}
		}
	}()

	for i := 0; i < n; i++ {
		for !r.Push(obs("BTC", float64(i))) {
			// spin until consumer drains
		}
	}
	wg.Wait()

	if received != n {
		t.Errorf("expected %d received, got %d", n, received)
	}
}
