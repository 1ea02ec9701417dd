package repos

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/architeacher/svc-event-bus/internal/domain"
	"github.com/architeacher/svc-event-bus/internal/ports"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const webhooksTable = "webhooks"

var webhookColumns = []string{
	"id", "user_id", "name", "url", "events", "disabled", "last_failure", "last_triggered_at", "created_at",
}

type (
	WebhookRepository struct {
		conn *sqlx.DB
	}

	webhookRow struct {
		ID              string         `db:"id"`
		UserID          string         `db:"user_id"`
		Name            string         `db:"name"`
		URL             string         `db:"url"`
		Events          pq.StringArray `db:"events"`
		Disabled        bool           `db:"disabled"`
		LastFailure     []byte         `db:"last_failure"`
		LastTriggeredAt *time.Time     `db:"last_triggered_at"`
		CreatedAt       time.Time      `db:"created_at"`
	}
)

var _ ports.WebhookRepository = (*WebhookRepository)(nil)

func NewWebhookRepository(db *sqlx.DB) *WebhookRepository {
	return &WebhookRepository{
		conn: db,
	}
}

func (r *WebhookRepository) Find(ctx context.Context, webhookID uuid.UUID) (*domain.Webhook, error) {
	query, args, err := psql.Select(webhookColumns...).
		From(webhooksTable).
		Where(sq.Eq{"id": webhookID.String()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var row webhookRow
	if err := r.conn.GetContext(ctx, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NewWebhookNotFoundError(webhookID.String())
		}

		return nil, fmt.Errorf("failed to query webhook: %w", err)
	}

	return row.toDomain()
}

// FindSubscribed matches the event itself and the wildcard subscription.
func (r *WebhookRepository) FindSubscribed(ctx context.Context, userID string, event domain.EventKey) ([]*domain.Webhook, error) {
	query, args, err := psql.Select(webhookColumns...).
		From(webhooksTable).
		Where(sq.And{
			sq.Eq{"user_id": userID},
			sq.Eq{"disabled": false},
			sq.Expr("events && ?", pq.Array([]string{event.String(), domain.EventWildcard.String()})),
		}).
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	var rows []webhookRow
	if err := r.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query subscribed webhooks: %w", err)
	}

	webhooks := make([]*domain.Webhook, 0, len(rows))
	for _, row := range rows {
		webhook, err := row.toDomain()
		if err != nil {
			return nil, err
		}

		webhooks = append(webhooks, webhook)
	}

	return webhooks, nil
}

func (r *WebhookRepository) UpdateStatus(ctx context.Context, webhook *domain.Webhook) error {
	var lastFailure any
	if webhook.Status.LastFailure != nil {
		encoded, err := json.Marshal(webhook.Status.LastFailure)
		if err != nil {
			return fmt.Errorf("failed to marshal last failure: %w", err)
		}

		lastFailure = encoded
	}

	query, args, err := psql.Update(webhooksTable).
		Set("last_failure", lastFailure).
		Set("last_triggered_at", webhook.Status.LastTriggeredAt).
		Where(sq.Eq{"id": webhook.ID.String()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	result, err := r.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update webhook status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return domain.NewWebhookNotFoundError(webhook.ID.String())
	}

	return nil
}

func (row webhookRow) toDomain() (*domain.Webhook, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse webhook id: %w", err)
	}

	events := make([]domain.EventKey, 0, len(row.Events))
	for _, event := range row.Events {
		events = append(events, domain.EventKey(event))
	}

	webhook := &domain.Webhook{
		ID:        id,
		UserID:    row.UserID,
		Name:      row.Name,
		URL:       row.URL,
		Events:    events,
		Disabled:  row.Disabled,
		CreatedAt: row.CreatedAt,
		Status: domain.WebhookStatus{
			LastTriggeredAt: row.LastTriggeredAt,
		},
	}

	if len(row.LastFailure) > 0 {
		var failure domain.WebhookFailure
		if err := json.Unmarshal(row.LastFailure, &failure); err != nil {
			return nil, fmt.Errorf("failed to unmarshal last failure: %w", err)
		}

		webhook.Status.LastFailure = &failure
	}

	return webhook, nil
}
