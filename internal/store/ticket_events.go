package store

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"clinicq/queue-service/internal/models"
)

type TicketEvent struct {
	TicketID  int64           `json:"ticket_id"`
	TicketSeq int             `json:"ticket_seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

const (
	EventTicketCreated   = "ticket.created"
	EventTicketCalled    = "ticket.called"
	EventTicketStarted   = "ticket.started"
	EventTicketCompleted = "ticket.completed"
	EventTicketCancelled = "ticket.cancelled"
	EventTicketRequeued  = "ticket.requeued"
)

type eventPayload struct {
	TicketID      int64      `json:"ticket_id"`
	VisitID       int64      `json:"visit_id"`
	QueueDate     string     `json:"queue_date"`
	Status        string     `json:"status"`
	FromStatus    string     `json:"from_status,omitempty"`
	QueuePosition int        `json:"queue_position"`
	EstimatedWait int        `json:"estimated_wait_time"`
	CalledAt      *time.Time `json:"called_at,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// TicketEventPayload snapshots a ticket for the audit chain.
func TicketEventPayload(ticket models.QueueTicket, fromStatus string) ([]byte, error) {
	return json.Marshal(eventPayload{
		TicketID:      ticket.TicketID,
		VisitID:       ticket.VisitID,
		QueueDate:     ticket.QueueDate.Format(time.DateOnly),
		Status:        ticket.QueueStatus,
		FromStatus:    fromStatus,
		QueuePosition: ticket.QueuePosition,
		EstimatedWait: ticket.EstimatedWaitTime,
		CalledAt:      ticket.CalledAt,
		StartedAt:     ticket.StartedAt,
		CompletedAt:   ticket.CompletedAt,
	})
}

func ComputeTicketEventHash(prevHash string, ticketID int64, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%d|%s|%s|%d|%s", prevHash, ticketID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// VerifyTicketEvents checks sequence continuity and the hash chain of one ticket's events.
func VerifyTicketEvents(events []TicketEvent) bool {
	prev := ""
	for i, event := range events {
		if event.TicketSeq != i+1 || event.PrevHash != prev {
			return false
		}
		if ComputeTicketEventHash(prev, event.TicketID, event.Type, event.Payload, event.CreatedAt, event.TicketSeq) != event.Hash {
			return false
		}
		prev = event.Hash
	}
	return true
}

// RehydrateTicket replays event snapshots into the latest ticket state.
func RehydrateTicket(events []TicketEvent) (models.QueueTicket, error) {
	var ticket models.QueueTicket
	for _, event := range events {
		if len(event.Payload) == 0 {
			continue
		}
		var payload eventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return models.QueueTicket{}, err
		}
		if payload.TicketID != 0 {
			ticket.TicketID = payload.TicketID
		}
		if payload.VisitID != 0 {
			ticket.VisitID = payload.VisitID
		}
		if payload.QueueDate != "" {
			day, err := time.Parse(time.DateOnly, payload.QueueDate)
			if err != nil {
				return models.QueueTicket{}, err
			}
			ticket.QueueDate = day
		}
		if payload.Status != "" {
			ticket.QueueStatus = payload.Status
		}
		ticket.QueuePosition = payload.QueuePosition
		ticket.EstimatedWaitTime = payload.EstimatedWait
		if payload.CalledAt != nil {
			ticket.CalledAt = payload.CalledAt
		}
		if payload.StartedAt != nil {
			ticket.StartedAt = payload.StartedAt
		}
		if payload.CompletedAt != nil {
			ticket.CompletedAt = payload.CompletedAt
		}
		if event.Type == EventTicketCreated {
			ticket.CreatedAt = event.CreatedAt
		}
		ticket.UpdatedAt = event.CreatedAt
	}
	return ticket, nil
}
