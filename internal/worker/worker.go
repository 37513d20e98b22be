// Package worker runs turn resolution on an isolated goroutine. Requests and
// responses cross as JSON bytes so no state is shared with the caller.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/enclaves/pkg/conflict"
)

// ErrClosed is returned when submitting to a stopped worker.
var ErrClosed = errors.New("worker closed")

// ResolveFunc resolves one decoded request.
type ResolveFunc func(req *conflict.Request, rng *rand.Rand) (*conflict.Result, error)

// Option configures a Worker before it starts.
type Option func(*Worker)

// WithQueueSize sets how many requests and responses may be buffered.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		w.queue = n
	}
}

// WithResolver replaces conflict.Resolve.
func WithResolver(fn ResolveFunc) Option {
	return func(w *Worker) {
		w.resolve = fn
	}
}

// Worker owns a single resolution goroutine. Every request produces exactly
// one response on Responses, in submission order.
type Worker struct {
	resolve ResolveFunc
	queue   int

	requests  chan []byte
	responses chan []byte

	once sync.Once
	quit chan struct{}
	// exited is closed when the goroutine returns.
	exited chan struct{}
}

// New starts a worker.
func New(opts ...Option) *Worker {
	w := &Worker{
		resolve: conflict.Resolve,
		queue:   16,
		quit:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	w.requests = make(chan []byte, w.queue)
	w.responses = make(chan []byte, w.queue)
	go w.run()
	return w
}

// Submit queues an encoded conflict.Request.
func (w *Worker) Submit(ctx context.Context, req []byte) error {
	select {
	case <-w.quit:
		return ErrClosed
	default:
	}
	select {
	case w.requests <- req:
		return nil
	case <-w.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Responses delivers encoded conflict.Response values. The channel is closed
// once the worker has stopped.
func (w *Worker) Responses() <-chan []byte {
	return w.responses
}

// Close stops the worker. Requests still queued are dropped.
func (w *Worker) Close() {
	w.once.Do(func() { close(w.quit) })
	<-w.exited
}

func (w *Worker) run() {
	defer close(w.exited)
	defer close(w.responses)
	for {
		select {
		case <-w.quit:
			return
		case data := <-w.requests:
			out := w.handle(data)
			select {
			case w.responses <- out:
			case <-w.quit:
				return
			}
		}
	}
}

// handle turns one request into one response. Nothing escapes: decode
// failures, resolution errors and panics all become error replies.
func (w *Worker) handle(data []byte) (out []byte) {
	var sessionID string
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("sessionId", sessionID).Str("stack", string(debug.Stack())).Msgf("Worker panicked: %v", r)
			out = conflict.ErrorResponse(sessionID, fmt.Errorf("worker panic: %v", r))
		}
	}()

	var req conflict.Request
	if err := json.Unmarshal(data, &req); err != nil {
		sessionID = peekSessionID(data)
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("Worker received undecodable request")
		return conflict.ErrorResponse(sessionID, fmt.Errorf("decode request: %w", err))
	}
	sessionID = req.SessionID

	res, err := w.resolve(&req, conflict.NewRand(req.Seed))
	if err != nil {
		return conflict.ErrorResponse(sessionID, err)
	}
	out, err = json.Marshal(conflict.Response{Result: res})
	if err != nil {
		return conflict.ErrorResponse(sessionID, fmt.Errorf("encode result: %w", err))
	}
	return out
}

func peekSessionID(data []byte) string {
	var head struct {
		SessionID string `json:"sessionId"`
	}
	json.Unmarshal(data, &head)
	return head.SessionID
}
