// Package queue holds the admission engine and the ticket lifecycle. Both
// operate on a store.Tx supplied by the caller and keep no state between calls.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"clinicq/queue-service/internal/models"
	"clinicq/queue-service/internal/store"
)

const instrumentation = "clinicq/queue-service/internal/queue"

const DefaultServiceMinutes = 30

type Admitter struct {
	defaultMinutes int
	now            func() time.Time
	tracer         trace.Tracer
	admissions     metric.Int64Counter
}

type AdmitterOption func(*Admitter)

func WithAdmitClock(now func() time.Time) AdmitterOption {
	return func(a *Admitter) { a.now = now }
}

func NewAdmitter(defaultMinutes int, opts ...AdmitterOption) *Admitter {
	if defaultMinutes <= 0 {
		defaultMinutes = DefaultServiceMinutes
	}
	a := &Admitter{
		defaultMinutes: defaultMinutes,
		now:            time.Now,
		tracer:         otel.Tracer(instrumentation),
	}
	for _, opt := range opts {
		opt(a)
	}
	counter, err := otel.Meter(instrumentation).Int64Counter(
		"queue.admissions",
		metric.WithDescription("Queue admissions by check-in method"),
	)
	if err == nil {
		a.admissions = counter
	}
	return a
}

type AdmitInput struct {
	PatientID    int64
	DepartmentID *int64
	DoctorID     *int64
	Method       string
	QueueDate    time.Time
	QRCode       string
}

type Admission struct {
	Visit    models.Visit
	Ticket   models.QueueTicket
	Existing bool
}

// Admit places the patient in the queue of in.QueueDate. A patient who already
// holds an open visit that day gets that visit and its ticket back.
func (a *Admitter) Admit(ctx context.Context, tx store.Tx, in AdmitInput) (Admission, error) {
	ctx, span := a.tracer.Start(ctx, "queue.Admit", trace.WithAttributes(
		attribute.Int64("patient_id", in.PatientID),
		attribute.String("check_in_method", in.Method),
	))
	defer span.End()

	admission, err := a.admit(ctx, tx, in)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Admission{}, err
	}
	span.SetAttributes(
		attribute.Int64("ticket_id", admission.Ticket.TicketID),
		attribute.Int("queue_position", admission.Ticket.QueuePosition),
		attribute.Bool("existing", admission.Existing),
	)
	if a.admissions != nil {
		a.admissions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", in.Method),
			attribute.Bool("existing", admission.Existing),
		))
	}
	return admission, nil
}

func (a *Admitter) admit(ctx context.Context, tx store.Tx, in AdmitInput) (Admission, error) {
	if err := tx.LockQueueDay(ctx, in.QueueDate); err != nil {
		return Admission{}, err
	}
	if _, err := tx.GetPatient(ctx, in.PatientID); err != nil {
		return Admission{}, err
	}

	now := a.now()
	visit, open, err := tx.FindVisitForDay(ctx, in.PatientID, in.QueueDate, models.OpenVisitStatuses)
	if err != nil {
		return Admission{}, err
	}
	if open {
		ticket, ok, err := tx.FindTicketByVisit(ctx, visit.VisitID)
		if err != nil {
			return Admission{}, err
		}
		if ok {
			return Admission{Visit: visit, Ticket: ticket, Existing: true}, nil
		}
	} else {
		visit, err = a.openVisit(ctx, tx, in, now)
		if err != nil {
			return Admission{}, err
		}
	}

	depth, err := tx.QueueDepth(ctx, in.QueueDate)
	if err != nil {
		return Admission{}, err
	}
	place := depth.Active + 1
	position := max(place, depth.MaxPosition+1)

	minutes, err := a.serviceMinutes(ctx, tx, visit.DepartmentID)
	if err != nil {
		return Admission{}, err
	}

	ticket, err := tx.CreateTicket(ctx, models.QueueTicket{
		VisitID:           visit.VisitID,
		QueueDate:         in.QueueDate,
		QueueStatus:       models.TicketWaiting,
		QueuePosition:     position,
		EstimatedWaitTime: Estimate(place, minutes),
	})
	if err != nil {
		return Admission{}, err
	}

	checkedInAt := now
	if visit.CheckInDatetime != nil {
		checkedInAt = *visit.CheckInDatetime
	}
	if err := tx.InsertCheckInLog(ctx, models.CheckInLog{
		VisitID:         visit.VisitID,
		PatientID:       visit.PatientID,
		CheckInMethod:   in.Method,
		QRCodeValue:     in.QRCode,
		CheckInDatetime: checkedInAt,
		Success:         true,
	}); err != nil {
		return Admission{}, err
	}

	payload, err := store.TicketEventPayload(ticket, "")
	if err != nil {
		return Admission{}, fmt.Errorf("encode ticket event: %w", err)
	}
	if err := tx.AppendTicketEvent(ctx, ticket.TicketID, store.EventTicketCreated, payload, now); err != nil {
		return Admission{}, err
	}
	return Admission{Visit: visit, Ticket: ticket}, nil
}

// openVisit activates today's scheduled visit or creates a walk-in one.
func (a *Admitter) openVisit(ctx context.Context, tx store.Tx, in AdmitInput, now time.Time) (models.Visit, error) {
	scheduled, ok, err := tx.FindVisitForDay(ctx, in.PatientID, in.QueueDate, []string{models.VisitScheduled})
	if err != nil {
		return models.Visit{}, err
	}
	if ok {
		scheduled.VisitStatus = models.VisitActive
		scheduled.CheckInDatetime = &now
		scheduled.CheckInMethod = in.Method
		if scheduled.DepartmentID == nil {
			scheduled.DepartmentID = in.DepartmentID
		}
		if scheduled.DoctorID == nil {
			scheduled.DoctorID = in.DoctorID
		}
		scheduled.UpdatedAt = now
		if err := tx.UpdateVisit(ctx, scheduled); err != nil {
			return models.Visit{}, err
		}
		return scheduled, nil
	}

	return tx.CreateVisit(ctx, models.Visit{
		PatientID:       in.PatientID,
		DepartmentID:    in.DepartmentID,
		DoctorID:        in.DoctorID,
		VisitDate:       in.QueueDate,
		CheckInDatetime: &now,
		CheckInMethod:   in.Method,
		VisitStatus:     models.VisitActive,
	})
}

func (a *Admitter) serviceMinutes(ctx context.Context, tx store.Tx, departmentID *int64) (int, error) {
	if departmentID == nil {
		return a.defaultMinutes, nil
	}
	dept, err := tx.GetDepartment(ctx, *departmentID)
	if errors.Is(err, store.ErrNotFound) {
		return a.defaultMinutes, nil
	}
	if err != nil {
		return 0, err
	}
	if dept.AverageServiceTime == nil || *dept.AverageServiceTime <= 0 {
		return a.defaultMinutes, nil
	}
	return *dept.AverageServiceTime, nil
}
