package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/architeacher/svc-event-bus/internal/domain"
	"github.com/architeacher/svc-event-bus/internal/ports"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const outboxEventsTable = "outbox_events"

var (
	psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	outboxColumns = []string{
		"id", "aggregate_id", "aggregate_type", "event_type", "exchange", "routing_key", "delay_ms",
		"priority", "retry_count", "max_retries", "status", "payload", "error_details",
		"created_at", "started_at", "published_at", "next_retry_at",
	}

	// priorityOrder ranks priorities since their names do not sort lexically.
	priorityOrder = "CASE priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'normal' THEN 2 ELSE 3 END"

	ErrOutboxEventNotFound = errors.New("outbox event not found")
	ErrEventAlreadyClaimed = errors.New("event not found or already claimed")
)

type (
	OutboxRepository struct {
		conn *sqlx.DB
	}

	outboxEventRow struct {
		ID            string     `db:"id"`
		AggregateID   string     `db:"aggregate_id"`
		AggregateType string     `db:"aggregate_type"`
		EventType     string     `db:"event_type"`
		Exchange      string     `db:"exchange"`
		RoutingKey    string     `db:"routing_key"`
		DelayMs       int64      `db:"delay_ms"`
		Priority      string     `db:"priority"`
		RetryCount    int        `db:"retry_count"`
		MaxRetries    int        `db:"max_retries"`
		Status        string     `db:"status"`
		Payload       []byte     `db:"payload"`
		ErrorDetails  *string    `db:"error_details"`
		CreatedAt     time.Time  `db:"created_at"`
		StartedAt     *time.Time `db:"started_at"`
		PublishedAt   *time.Time `db:"published_at"`
		NextRetryAt   *time.Time `db:"next_retry_at"`
	}
)

var _ ports.OutboxRepository = (*OutboxRepository)(nil)

func NewOutboxRepository(db *sqlx.DB) *OutboxRepository {
	return &OutboxRepository{
		conn: db,
	}
}

// SaveInTx saves an outbox event within a transaction. Events without an ID get a
// deterministic one so a replayed state change does not enqueue twice.
func (r *OutboxRepository) SaveInTx(ctx context.Context, tx *sqlx.Tx, event *domain.OutboxEvent) error {
	if event.ID == uuid.Nil {
		eventName := fmt.Sprintf("%s::%s::%s::%d",
			event.AggregateID.String(),
			event.EventType,
			event.RoutingKey,
			event.CreatedAt.UnixNano())
		event.ID = uuid.NewSHA1(OutboxNamespace, []byte(eventName))
	}

	query, args, err := psql.Insert(outboxEventsTable).
		Columns("id", "aggregate_id", "aggregate_type", "event_type", "exchange", "routing_key", "delay_ms",
			"priority", "retry_count", "max_retries", "status", "payload", "created_at").
		Values(event.ID.String(), event.AggregateID.String(), event.AggregateType, event.EventType, event.Exchange, event.RoutingKey,
			event.Delay.Milliseconds(), event.Priority, event.RetryCount, event.MaxRetries, event.Status,
			[]byte(event.Payload), event.CreatedAt).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}

	return nil
}

// FindPending finds pending outbox events ordered by priority and creation time.
func (r *OutboxRepository) FindPending(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	return r.findByCriteria(
		ctx,
		sq.Eq{"status": domain.OutboxStatusPending},
		[]string{priorityOrder, "created_at ASC"},
		limit,
		"pending outbox events",
	)
}

// FindRetryable finds failed events that are ready for retry.
func (r *OutboxRepository) FindRetryable(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	return r.findByCriteria(
		ctx,
		sq.And{
			sq.Eq{"status": domain.OutboxStatusFailed},
			sq.NotEq{"next_retry_at": nil},
			sq.Expr("next_retry_at <= NOW()"),
			sq.Expr("retry_count < max_retries"),
		},
		[]string{"next_retry_at ASC"},
		limit,
		"retryable outbox events",
	)
}

func (r *OutboxRepository) findByCriteria(
	ctx context.Context,
	criteria sq.Sqlizer,
	orderBy []string,
	limit int,
	errorContext string,
) ([]*domain.OutboxEvent, error) {
	query, args, err := psql.Select(outboxColumns...).
		From(outboxEventsTable).
		Where(criteria).
		OrderBy(orderBy...).
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var rows []outboxEventRow
	if err := r.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", errorContext, err)
	}

	events := make([]*domain.OutboxEvent, 0, len(rows))
	for _, row := range rows {
		event, err := row.toDomain()
		if err != nil {
			return nil, err
		}

		events = append(events, event)
	}

	return events, nil
}

// ClaimForProcessing atomically claims an event for processing.
func (r *OutboxRepository) ClaimForProcessing(ctx context.Context, eventID uuid.UUID) (*domain.OutboxEvent, error) {
	query, args, err := psql.Update(outboxEventsTable).
		Set("status", domain.OutboxStatusProcessing).
		Set("started_at", sq.Expr("NOW()")).
		Where(sq.And{
			sq.Eq{"id": eventID.String()},
			sq.Eq{"status": []domain.OutboxStatus{domain.OutboxStatusPending, domain.OutboxStatusFailed}},
		}).
		Suffix("RETURNING " + strings.Join(outboxColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build update query: %w", err)
	}

	var row outboxEventRow
	if err := r.conn.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventAlreadyClaimed
		}

		return nil, fmt.Errorf("failed to claim event: %w", err)
	}

	return row.toDomain()
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, eventID uuid.UUID) error {
	return r.update(ctx, eventID, "mark event as published", map[string]any{
		"status":        domain.OutboxStatusPublished,
		"published_at":  sq.Expr("NOW()"),
		"error_details": nil,
		"next_retry_at": nil,
	})
}

// MarkFailed marks an event as failed with error details and retry timing.
func (r *OutboxRepository) MarkFailed(ctx context.Context, eventID uuid.UUID, errorDetails string, nextRetryAt *time.Time) error {
	return r.update(ctx, eventID, "mark event as failed", map[string]any{
		"status":        domain.OutboxStatusFailed,
		"retry_count":   sq.Expr("retry_count + 1"),
		"error_details": errorDetails,
		"next_retry_at": nextRetryAt,
	})
}

// MarkPermanentlyFailed marks an event as permanently failed after max retries.
func (r *OutboxRepository) MarkPermanentlyFailed(ctx context.Context, eventID uuid.UUID, errorDetails string) error {
	return r.update(ctx, eventID, "mark event as permanently failed", map[string]any{
		"status":        domain.OutboxStatusFailed,
		"error_details": errorDetails,
		"next_retry_at": nil,
	})
}

func (r *OutboxRepository) update(ctx context.Context, eventID uuid.UUID, action string, values map[string]any) error {
	query, args, err := psql.Update(outboxEventsTable).
		SetMap(values).
		Where(sq.Eq{"id": eventID.String()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	result, err := r.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrOutboxEventNotFound, eventID)
	}

	return nil
}

func (row outboxEventRow) toDomain() (*domain.OutboxEvent, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse id: %w", err)
	}

	aggregateID, err := uuid.Parse(row.AggregateID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse aggregate_id: %w", err)
	}

	return &domain.OutboxEvent{
		ID:            id,
		AggregateID:   aggregateID,
		AggregateType: row.AggregateType,
		EventType:     domain.OutboxEventType(row.EventType),
		Exchange:      row.Exchange,
		RoutingKey:    row.RoutingKey,
		Delay:         time.Duration(row.DelayMs) * time.Millisecond,
		Priority:      domain.Priority(row.Priority),
		RetryCount:    row.RetryCount,
		MaxRetries:    row.MaxRetries,
		Status:        domain.OutboxStatus(row.Status),
		Payload:       row.Payload,
		ErrorDetails:  row.ErrorDetails,
		CreatedAt:     row.CreatedAt,
		StartedAt:     row.StartedAt,
		PublishedAt:   row.PublishedAt,
		NextRetryAt:   row.NextRetryAt,
	}, nil
}
