package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/freeeve/enclaves/internal/model"
)

// SessionRepository defines durable session operations (Postgres).
type SessionRepository interface {
	Create(ctx context.Context, userID, name, turnDuration, runID string, setup json.RawMessage) (*model.Session, error)
	FindByID(ctx context.Context, id string) (*model.Session, error)
	ListByUser(ctx context.Context, userID string) ([]model.Session, error)
	ListActive(ctx context.Context) ([]model.Session, error)
	SetRun(ctx context.Context, id, runID string) error
	SetFinished(ctx context.Context, id, status, outcome string) error
}

// TurnRepository stores resolved turns. Postgres backs the server; SQLite
// backs headless skirmishes.
type TurnRepository interface {
	SaveTurn(ctx context.Context, turn *model.Turn) error
	ListTurns(ctx context.Context, sessionID string) ([]model.Turn, error)
}

// Order sets kept per session.
const (
	SidePlayer = "player"
	SideAI     = "ai"
)

// SessionCache defines live session state operations (Redis).
type SessionCache interface {
	SetState(ctx context.Context, sessionID string, state json.RawMessage) error
	GetState(ctx context.Context, sessionID string) (json.RawMessage, error)
	SetOrders(ctx context.Context, sessionID, side string, orders json.RawMessage) error
	GetOrders(ctx context.Context, sessionID, side string) (json.RawMessage, error)
	ClearOrders(ctx context.Context, sessionID string) error
	SetTimer(ctx context.Context, sessionID string, deadline time.Time) error
	ClearTimer(ctx context.Context, sessionID string) error
	DeleteSessionData(ctx context.Context, sessionID string) error
}
