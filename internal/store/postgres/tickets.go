package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"clinicq/queue-service/internal/models"
	"clinicq/queue-service/internal/store"
)

const ticketColumns = `ticket_id, visit_id, queue_date, queue_status, queue_position, estimated_wait_time,
	called_at, started_at, completed_at, created_at, updated_at`

func scanTicket(row pgx.Row) (models.QueueTicket, error) {
	var tk models.QueueTicket
	err := row.Scan(&tk.TicketID, &tk.VisitID, &tk.QueueDate, &tk.QueueStatus, &tk.QueuePosition, &tk.EstimatedWaitTime,
		&tk.CalledAt, &tk.StartedAt, &tk.CompletedAt, &tk.CreatedAt, &tk.UpdatedAt)
	return tk, err
}

func (t *pgTx) GetTicket(ctx context.Context, ticketID int64) (models.QueueTicket, error) {
	tk, err := scanTicket(t.tx.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM queue_tickets
		WHERE ticket_id = $1
		FOR UPDATE
	`, ticketID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.QueueTicket{}, store.ErrTicketNotFound
	}
	return tk, err
}

func (t *pgTx) FindTicketByVisit(ctx context.Context, visitID int64) (models.QueueTicket, bool, error) {
	tk, err := scanTicket(t.tx.QueryRow(ctx, `
		SELECT `+ticketColumns+`
		FROM queue_tickets
		WHERE visit_id = $1
	`, visitID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.QueueTicket{}, false, nil
	}
	if err != nil {
		return models.QueueTicket{}, false, err
	}
	return tk, true, nil
}

func (t *pgTx) CreateTicket(ctx context.Context, tk models.QueueTicket) (models.QueueTicket, error) {
	now := t.now()
	row := t.tx.QueryRow(ctx, `
		INSERT INTO queue_tickets (
			visit_id, queue_date, queue_status, queue_position, estimated_wait_time,
			called_at, started_at, completed_at, created_at, updated_at
		) VALUES ($1,$2::date,$3,$4,$5,$6,$7,$8,$9,$9)
		RETURNING ticket_id, created_at, updated_at
	`, tk.VisitID, dateParam(tk.QueueDate), tk.QueueStatus, tk.QueuePosition, tk.EstimatedWaitTime,
		tk.CalledAt, tk.StartedAt, tk.CompletedAt, now)
	if err := row.Scan(&tk.TicketID, &tk.CreatedAt, &tk.UpdatedAt); err != nil {
		return models.QueueTicket{}, err
	}
	return tk, nil
}

func (t *pgTx) UpdateTicket(ctx context.Context, tk models.QueueTicket) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE queue_tickets SET
			queue_status = $2, queue_position = $3, estimated_wait_time = $4,
			called_at = $5, started_at = $6, completed_at = $7, updated_at = $8
		WHERE ticket_id = $1
	`, tk.TicketID, tk.QueueStatus, tk.QueuePosition, tk.EstimatedWaitTime,
		tk.CalledAt, tk.StartedAt, tk.CompletedAt, tk.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrTicketNotFound
	}
	return nil
}

// AppendTicketEvent extends the ticket's hash chain. The advisory lock
// serializes appenders of one ticket even before its first event exists.
func (t *pgTx) AppendTicketEvent(ctx context.Context, ticketID int64, eventType string, payload []byte, createdAt time.Time) error {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, ticketID); err != nil {
		return err
	}

	var lastSeq int
	var prevHash *string
	row := t.tx.QueryRow(ctx, `
		SELECT ticket_seq, hash
		FROM ticket_events
		WHERE ticket_id = $1
		ORDER BY ticket_seq DESC
		LIMIT 1
	`, ticketID)
	if err := row.Scan(&lastSeq, &prevHash); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	prev := ""
	if prevHash != nil {
		prev = *prevHash
	}
	seq := lastSeq + 1
	// timestamptz keeps microseconds; hash what will be read back.
	createdAt = createdAt.UTC().Truncate(time.Microsecond)
	hash := store.ComputeTicketEventHash(prev, ticketID, eventType, payload, createdAt, seq)

	_, err := t.tx.Exec(ctx, `
		INSERT INTO ticket_events (ticket_id, ticket_seq, type, payload, created_at, prev_hash, hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ticketID, seq, eventType, string(payload), createdAt, prev, hash)
	return err
}
