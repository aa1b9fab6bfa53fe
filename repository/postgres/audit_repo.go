package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fastygo/portal/domain"
	"github.com/fastygo/portal/repository"
)

type securityEventRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityEventRepository returns the append-only Postgres audit trail.
func NewSecurityEventRepository(pool *pgxpool.Pool) repository.SecurityEventRepository {
	return &securityEventRepository{pool: pool}
}

// Append is idempotent on the event id so buffered replays never duplicate rows.
func (r *securityEventRepository) Append(ctx context.Context, event *domain.SecurityEvent) error {
	if event == nil || !event.Kind.Known() {
		return domain.ErrInvalidPayload
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	const query = `
	INSERT INTO security_events (id, kind, actor_id, payload, occurred_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		event.ID,
		string(event.Kind),
		event.ActorID,
		jsonColumn(event.Payload),
		event.Timestamp,
	)
	return err
}

func (r *securityEventRepository) List(ctx context.Context, filter repository.SecurityEventFilter) ([]domain.SecurityEvent, error) {
	const query = `
	SELECT id, kind, actor_id, payload, occurred_at
	FROM security_events
	WHERE ($1 = '' OR actor_id = $1)
	  AND ($2 = '' OR kind = $2)
	ORDER BY occurred_at DESC
	LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query, filter.ActorID, string(filter.Kind), pageSize(filter.Limit), filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.SecurityEvent
	for rows.Next() {
		var (
			event   domain.SecurityEvent
			kind    string
			payload []byte
		)
		if err := rows.Scan(&event.ID, &kind, &event.ActorID, &payload, &event.Timestamp); err != nil {
			return nil, err
		}
		event.Kind = domain.SecurityEventKind(kind)
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &event.Payload)
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
