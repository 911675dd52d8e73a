package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vipul43/fitsync-worker/internal/models"
)

var ErrEventNotFound = errors.New("webhook event not found")

// WebhookEventRepository is the durable queue behind the webhook receiver.
// It speaks raw SQL so the dequeue order and partial index stay explicit.
type WebhookEventRepository struct {
	db *sql.DB
}

func NewWebhookEventRepository(db *sql.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

const webhookEventColumns = `
	id, object_type, object_id, aspect_type, owner_id, subscription_id,
	event_time, updates, processed, processed_at, retry_count,
	error_message, created_at`

// Create inserts a freshly received event
func (r *WebhookEventRepository) Create(ctx context.Context, event models.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (
			id, object_type, object_id, aspect_type, owner_id,
			subscription_id, event_time, updates, processed, retry_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, 0, $9)
	`

	updates := event.Updates
	if updates == nil {
		updates = models.StringMap{}
	}

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		string(event.ObjectType),
		event.ObjectID,
		string(event.AspectType),
		event.OwnerID,
		event.SubscriptionID,
		event.EventTime,
		updates,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create webhook event: %w", err)
	}

	return nil
}

// GetPendingEvents returns unprocessed events that still have retry budget, oldest first
func (r *WebhookEventRepository) GetPendingEvents(ctx context.Context, limit, maxRetries int) ([]models.WebhookEvent, error) {
	query := `SELECT` + webhookEventColumns + `
		FROM webhook_events
		WHERE processed = false AND retry_count < $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending events: %w", err)
	}
	defer rows.Close()

	return r.scanEvents(rows)
}

// ListDeadLettered returns unprocessed events whose retry budget is spent, newest first
func (r *WebhookEventRepository) ListDeadLettered(ctx context.Context, limit, maxRetries int) ([]models.WebhookEvent, error) {
	query := `SELECT` + webhookEventColumns + `
		FROM webhook_events
		WHERE processed = false AND retry_count >= $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead-lettered events: %w", err)
	}
	defer rows.Close()

	return r.scanEvents(rows)
}

// MarkProcessed flags the event as done so it is never dequeued again
func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, eventID string) error {
	query := `
		UPDATE webhook_events
		SET processed = true, processed_at = $1, error_message = NULL
		WHERE id = $2
	`

	_, err := r.db.ExecContext(ctx, query, time.Now(), eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}

	return nil
}

// RecordFailure spends one retry and stores the reason
func (r *WebhookEventRepository) RecordFailure(ctx context.Context, eventID string, reason string) error {
	query := `
		UPDATE webhook_events
		SET retry_count = retry_count + 1, error_message = $1
		WHERE id = $2
	`

	_, err := r.db.ExecContext(ctx, query, reason, eventID)
	if err != nil {
		return fmt.Errorf("failed to record event failure: %w", err)
	}

	return nil
}

// MarkDeadLettered exhausts the retry budget in one step.
// GREATEST keeps retry_count monotonic when the limit was lowered after the event was queued.
func (r *WebhookEventRepository) MarkDeadLettered(ctx context.Context, eventID string, maxRetries int, reason string) error {
	query := `
		UPDATE webhook_events
		SET retry_count = GREATEST(retry_count, $1), error_message = $2
		WHERE id = $3
	`

	_, err := r.db.ExecContext(ctx, query, maxRetries, reason, eventID)
	if err != nil {
		return fmt.Errorf("failed to dead-letter event: %w", err)
	}

	return nil
}

// Requeue resets the retry budget of an unprocessed event
func (r *WebhookEventRepository) Requeue(ctx context.Context, eventID string) error {
	query := `
		UPDATE webhook_events
		SET retry_count = 0, error_message = NULL
		WHERE id = $1 AND processed = false
	`

	result, err := r.db.ExecContext(ctx, query, eventID)
	if err != nil {
		return fmt.Errorf("failed to requeue event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read requeue result: %w", err)
	}
	if affected == 0 {
		return ErrEventNotFound
	}

	return nil
}

// GetByID retrieves a webhook event by ID
func (r *WebhookEventRepository) GetByID(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	query := `SELECT` + webhookEventColumns + `
		FROM webhook_events
		WHERE id = $1
	`

	event, err := scanEvent(r.db.QueryRowContext(ctx, query, eventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	return &event, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (models.WebhookEvent, error) {
	var (
		event      models.WebhookEvent
		objectType string
		aspectType string
	)
	err := row.Scan(
		&event.ID,
		&objectType,
		&event.ObjectID,
		&aspectType,
		&event.OwnerID,
		&event.SubscriptionID,
		&event.EventTime,
		&event.Updates,
		&event.Processed,
		&event.ProcessedAt,
		&event.RetryCount,
		&event.ErrorMessage,
		&event.CreatedAt,
	)
	// Stored values are not validated here; the processor dead-letters unknown ones.
	event.ObjectType = models.SubjectType(objectType)
	event.AspectType = models.Action(aspectType)
	return event, err
}

// scanEvents scans database rows into a WebhookEvent slice
func (r *WebhookEventRepository) scanEvents(rows *sql.Rows) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent

	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return events, nil
}
