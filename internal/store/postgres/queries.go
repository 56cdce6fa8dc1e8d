package postgres

import (
	"context"
	"time"

	"clinicq/queue-service/internal/models"
	"clinicq/queue-service/internal/store"
)

func (s *Store) ListDoctorQueue(ctx context.Context, doctorID int64, queueDate time.Time) ([]store.QueueEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.ticket_id, t.visit_id, t.queue_date, t.queue_status, t.queue_position, t.estimated_wait_time,
			t.called_at, t.started_at, t.completed_at, t.created_at, t.updated_at,
			COALESCE(p.first_name || ' ' || p.last_name, ''), v.check_in_datetime
		FROM queue_tickets t
		JOIN visits v ON v.visit_id = t.visit_id
		LEFT JOIN patients p ON p.patient_id = v.patient_id
		WHERE v.doctor_id = $1 AND t.queue_date = $2::date AND t.queue_status = ANY($3)
		ORDER BY t.queue_position ASC
	`, doctorID, dateParam(queueDate), models.ActiveTicketStatuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []store.QueueEntry
	for rows.Next() {
		var e store.QueueEntry
		tk := &e.Ticket
		if err := rows.Scan(&tk.TicketID, &tk.VisitID, &tk.QueueDate, &tk.QueueStatus, &tk.QueuePosition, &tk.EstimatedWaitTime,
			&tk.CalledAt, &tk.StartedAt, &tk.CompletedAt, &tk.CreatedAt, &tk.UpdatedAt,
			&e.PatientName, &e.CheckInDatetime); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) ListTicketEvents(ctx context.Context, ticketID int64) ([]store.TicketEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ticket_id, ticket_seq, type, payload, created_at, prev_hash, hash
		FROM ticket_events
		WHERE ticket_id = $1
		ORDER BY ticket_seq ASC
	`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.TicketEvent
	for rows.Next() {
		var event store.TicketEvent
		var payload string
		if err := rows.Scan(&event.TicketID, &event.TicketSeq, &event.Type, &payload, &event.CreatedAt, &event.PrevHash, &event.Hash); err != nil {
			return nil, err
		}
		event.Payload = []byte(payload)
		event.CreatedAt = event.CreatedAt.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
