package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"tradepulse/internal/model"
)

// pendingWrite is a publish buffered while the circuit is open.
type pendingWrite struct {
	Kind string // "result", "candle"
	Data []byte
}

// BufferedPublisher wraps a Publisher with a circuit breaker. While Redis is
// down, publishes are buffered locally and replayed once the circuit closes,
// so a Redis outage never stalls or loses the analysis stream.
type BufferedPublisher struct {
	pub *Publisher
	cb  *CircuitBreaker
	ctx context.Context

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int

	// Callbacks for metrics
	OnBuffer func()
	OnFlush  func(count int)
}

// NewBuffered creates a BufferedPublisher. maxBufferSize caps locally held
// writes; the oldest are dropped beyond it.
func NewBuffered(ctx context.Context, pub *Publisher, cb *CircuitBreaker, maxBufferSize int) *BufferedPublisher {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bp := &BufferedPublisher{
		pub:    pub,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]pendingWrite, 0, 256),
		maxBuf: maxBufferSize,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go bp.flush()
		}
	}
	return bp
}

// PublishResult publishes through the breaker, buffering on open circuit.
func (bp *BufferedPublisher) PublishResult(r *model.AnalysisResult) error {
	err := bp.cb.Execute(func() error {
		return bp.pub.PublishResult(bp.ctx, r)
	})
	if err == ErrCircuitOpen {
		bp.bufferWrite("result", r)
		return nil
	}
	return err
}

// PublishCandle publishes through the breaker, buffering on open circuit.
func (bp *BufferedPublisher) PublishCandle(c model.Candle) error {
	err := bp.cb.Execute(func() error {
		return bp.pub.PublishCandle(bp.ctx, c)
	})
	if err == ErrCircuitOpen {
		bp.bufferWrite("candle", c)
		return nil
	}
	return err
}

// PublishTransition publishes through the breaker. Transitions are not
// buffered: a minute-old signal flip is stale by the time Redis recovers.
func (bp *BufferedPublisher) PublishTransition(r *model.AnalysisResult, previous string) error {
	err := bp.cb.Execute(func() error {
		return bp.pub.PublishTransition(bp.ctx, r, previous)
	})
	if err == ErrCircuitOpen {
		return nil
	}
	return err
}

func (bp *BufferedPublisher) bufferWrite(kind string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[buffered-publisher] marshal error: %v", err)
		return
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()
	if len(bp.buffer) >= bp.maxBuf {
		bp.buffer = bp.buffer[1:]
	}
	bp.buffer = append(bp.buffer, pendingWrite{Kind: kind, Data: data})

	if bp.OnBuffer != nil {
		bp.OnBuffer()
	}
}

// flush replays all buffered publishes.
func (bp *BufferedPublisher) flush() {
	bp.mu.Lock()
	if len(bp.buffer) == 0 {
		bp.mu.Unlock()
		return
	}
	toFlush := bp.buffer
	bp.buffer = make([]pendingWrite, 0, 256)
	bp.mu.Unlock()

	flushed := 0
	for _, pw := range toFlush {
		switch pw.Kind {
		case "result":
			var r model.AnalysisResult
			if json.Unmarshal(pw.Data, &r) == nil {
				bp.pub.PublishResult(bp.ctx, &r)
			}
		case "candle":
			var c model.Candle
			if json.Unmarshal(pw.Data, &c) == nil {
				bp.pub.PublishCandle(bp.ctx, c)
			}
		}
		flushed++
	}

	log.Printf("[buffered-publisher] flushed %d buffered publishes", flushed)
	if bp.OnFlush != nil {
		bp.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered publishes awaiting flush.
func (bp *BufferedPublisher) PendingCount() int {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	return len(bp.buffer)
}

// Underlying returns the wrapped Publisher for direct access.
func (bp *BufferedPublisher) Underlying() *Publisher {
	return bp.pub
}
