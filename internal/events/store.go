package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DB is the subset of pgxpool.Pool used by the event store.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore persists domain events to Postgres.
type PGStore struct {
	DB DB
}

// InsertDomainEvent appends the event and returns the stored row.
func (st *PGStore) InsertDomainEvent(ctx context.Context, ev DomainEvent) (DomainEvent, error) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	row := st.DB.QueryRow(ctx,
		`INSERT INTO domain_events (id, topic, aggregate_id, payload)
		 VALUES ($1, $2, $3, $4)
		 RETURNING occurred_at`,
		ev.ID, ev.Topic, ev.AggregateID, ev.Payload)
	var occurred time.Time
	if err := row.Scan(&occurred); err != nil {
		return DomainEvent{}, err
	}
	ev.OccurredAt = occurred
	return ev, nil
}
