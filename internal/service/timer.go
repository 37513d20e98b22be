package service

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/enclaves/internal/repository"
	redisrepo "github.com/freeeve/enclaves/internal/repository/redis"
)

// TimerListener listens for Redis keyspace notifications on expired timer keys
// and triggers turn resolution when a session's timer expires. Also runs a
// polling fallback that catches missed expirations and re-runs the pending
// order guard.
type TimerListener struct {
	rdb      *redis.Client
	turnSvc  *TurnService
	orderSvc *OrderService
	sessions repository.SessionRepository
	interval time.Duration
}

// NewTimerListener creates a TimerListener.
func NewTimerListener(rdb *redis.Client, turnSvc *TurnService, orderSvc *OrderService, sessions repository.SessionRepository) *TimerListener {
	return &TimerListener{rdb: rdb, turnSvc: turnSvc, orderSvc: orderSvc, sessions: sessions, interval: 5 * time.Second}
}

// Start begins listening for expired key events and runs the poller. It
// blocks until ctx is done.
func (t *TimerListener) Start(ctx context.Context) {
	go t.listenKeyspace(ctx)
	t.poll(ctx)
}

// listenKeyspace subscribes to Redis keyspace notifications for expired keys.
func (t *TimerListener) listenKeyspace(ctx context.Context) {
	pubsub := t.rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	defer pubsub.Close()

	log.Info().Msg("Timer listener started, listening for expired keys")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			t.handleExpiry(ctx, msg.Payload)
		}
	}
}

func (t *TimerListener) poll(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", t.interval).Msg("Turn deadline poller started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Turn deadline poller stopped")
			return
		case <-ticker.C:
			t.tick(ctx)
		}
	}
}

// tick guards pending orders of every active session and resolves those
// past their deadline.
func (t *TimerListener) tick(ctx context.Context) {
	sessions, err := t.sessions.ListActive(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list active sessions")
		return
	}
	for _, s := range sessions {
		if t.turnSvc.InFlight(s.ID) {
			continue
		}
		if err := t.orderSvc.GuardPending(ctx, s.ID); err != nil {
			log.Warn().Err(err).Str("sessionId", s.ID).Msg("Pending order guard failed")
		}
		if err := t.turnSvc.ResolveDue(ctx, s.ID); err != nil {
			log.Error().Err(err).Str("sessionId", s.ID).Msg("Turn resolution failed from poller")
		}
	}
}

// handleExpiry processes an expired key. Only acts on session timer keys.
func (t *TimerListener) handleExpiry(ctx context.Context, key string) {
	sessionID, ok := redisrepo.SessionFromTimerKey(key)
	if !ok {
		return
	}
	log.Info().Str("sessionId", sessionID).Msg("Timer expired, triggering turn resolution")
	if _, err := t.turnSvc.ResolveTurn(ctx, sessionID); err != nil {
		log.Error().Err(err).Str("sessionId", sessionID).Msg("Turn resolution failed after timer expiry")
	}
}
