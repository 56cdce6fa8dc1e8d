package models

import "time"

type QueueTicket struct {
	TicketID          int64      `json:"ticket_id"`
	VisitID           int64      `json:"visit_id"`
	QueueDate         time.Time  `json:"queue_date"`
	QueueStatus       string     `json:"queue_status"`
	QueuePosition     int        `json:"queue_position"`
	EstimatedWaitTime int        `json:"estimated_wait_time"`
	CalledAt          *time.Time `json:"called_at,omitempty"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

const (
	TicketWaiting    = "WAITING"
	TicketCalled     = "CALLED"
	TicketInProgress = "IN_PROGRESS"
	TicketCompleted  = "COMPLETED"
	TicketCancelled  = "CANCELLED"
)

// ActiveTicketStatuses are the statuses that count towards queue depth.
var ActiveTicketStatuses = []string{TicketWaiting, TicketCalled, TicketInProgress}

// TicketStatuses is the enumerated set accepted for explicit status updates.
var TicketStatuses = []string{TicketWaiting, TicketCalled, TicketInProgress, TicketCompleted, TicketCancelled}

func IsActiveTicketStatus(status string) bool {
	return contains(ActiveTicketStatuses, status)
}

func IsTicketStatus(status string) bool {
	return contains(TicketStatuses, status)
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
