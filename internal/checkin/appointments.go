package checkin

import (
	"context"

	"clinicq/queue-service/internal/models"
	"clinicq/queue-service/internal/queue"
	"clinicq/queue-service/internal/store"
)

const (
	MsgStarted       = "Appointment started successfully"
	MsgCompleted     = "Appointment completed successfully"
	MsgStatusUpdated = "Queue status updated successfully"
)

type TransitionResult struct {
	Message     string             `json:"message"`
	OldStatus   string             `json:"old_status"`
	NewStatus   string             `json:"new_status"`
	PatientName string             `json:"patient_name"`
	Ticket      models.QueueTicket `json:"ticket"`
	Visit       models.Visit       `json:"visit"`
}

type transitionFunc func(ctx context.Context, tx store.Tx, ticketID int64) (queue.Transition, error)

func (s *Service) transition(ctx context.Context, ticketID int64, message string, fn transitionFunc) (TransitionResult, error) {
	if ticketID <= 0 {
		return TransitionResult{}, store.ErrInvalidID
	}
	var result TransitionResult
	err := s.store.WithinTx(ctx, func(tx store.Tx) error {
		out, err := fn(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		patient, err := tx.GetPatient(ctx, out.Visit.PatientID)
		if err != nil {
			return err
		}
		result = TransitionResult{
			Message:     message,
			OldStatus:   out.OldStatus,
			NewStatus:   out.Ticket.QueueStatus,
			PatientName: patient.FullName(),
			Ticket:      out.Ticket,
			Visit:       out.Visit,
		}
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}
	s.logger.Info().
		Int64("ticket_id", ticketID).
		Str("from", result.OldStatus).
		Str("to", result.NewStatus).
		Msg("ticket transition")
	return result, nil
}

func (s *Service) StartAppointment(ctx context.Context, ticketID int64) (TransitionResult, error) {
	return s.transition(ctx, ticketID, MsgStarted, s.lifecycle.Start)
}

func (s *Service) CompleteAppointment(ctx context.Context, ticketID int64) (TransitionResult, error) {
	return s.transition(ctx, ticketID, MsgCompleted, s.lifecycle.Complete)
}

// UpdateStatus sets an explicit ticket status. The name must match one of the
// enumerated statuses exactly.
func (s *Service) UpdateStatus(ctx context.Context, ticketID int64, status string) (TransitionResult, error) {
	if !models.IsTicketStatus(status) {
		return TransitionResult{}, store.ErrInvalidStatus
	}
	return s.transition(ctx, ticketID, MsgStatusUpdated, func(ctx context.Context, tx store.Tx, id int64) (queue.Transition, error) {
		return s.lifecycle.SetStatus(ctx, tx, id, status)
	})
}
