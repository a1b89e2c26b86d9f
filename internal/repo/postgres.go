package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/noah-isme/acp-checkout/internal/checkout"
)

// DBTX is the subset of pgxpool.Pool used by PostgresSessions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	upsertSession = `INSERT INTO checkout_sessions (id, status, document, created_at, updated_at)
VALUES ($1, $2, $3, now(), now())
ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, document = EXCLUDED.document, updated_at = now()`
	selectSession = `SELECT document FROM checkout_sessions WHERE id = $1`
	deleteSession = `DELETE FROM checkout_sessions WHERE id = $1`
)

// PostgresSessions stores each session as a JSONB document.
type PostgresSessions struct {
	DB DBTX
}

func (p PostgresSessions) Put(ctx context.Context, s checkout.Session) error {
	if p.DB == nil {
		return errors.New("postgres session store not configured")
	}
	doc, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	if _, err := p.DB.Exec(ctx, upsertSession, s.ID, string(s.Status), doc); err != nil {
		return fmt.Errorf("upsert session %s: %w", s.ID, err)
	}
	return nil
}

func (p PostgresSessions) Get(ctx context.Context, id string) (checkout.Session, error) {
	if p.DB == nil {
		return checkout.Session{}, errors.New("postgres session store not configured")
	}
	var doc []byte
	if err := p.DB.QueryRow(ctx, selectSession, id).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return checkout.Session{}, checkout.ErrSessionNotFound
		}
		return checkout.Session{}, fmt.Errorf("load session %s: %w", id, err)
	}
	return decodeSession(id, doc)
}

func (p PostgresSessions) Delete(ctx context.Context, id string) error {
	if p.DB == nil {
		return errors.New("postgres session store not configured")
	}
	if _, err := p.DB.Exec(ctx, deleteSession, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}
