package queue

import (
	"context"
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

type Lifecycle struct {
	strictCompletion bool
	now              func() time.Time
	tracer           trace.Tracer
	transitions      metric.Int64Counter
}

type LifecycleOption func(*Lifecycle)

func WithLifecycleClock(now func() time.Time) LifecycleOption {
	return func(l *Lifecycle) { l.now = now }
}

// WithStrictCompletion only lets IN_PROGRESS tickets complete.
func WithStrictCompletion(strict bool) LifecycleOption {
	return func(l *Lifecycle) { l.strictCompletion = strict }
}

func NewLifecycle(opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{now: time.Now, tracer: otel.Tracer(instrumentation)}
	for _, opt := range opts {
		opt(l)
	}
	counter, err := otel.Meter(instrumentation).Int64Counter(
		"queue.transitions",
		metric.WithDescription("Ticket status transitions"),
	)
	if err == nil {
		l.transitions = counter
	}
	return l
}

type Transition struct {
	Ticket    models.QueueTicket
	Visit     models.Visit
	OldStatus string
}

func (l *Lifecycle) Call(ctx context.Context, tx store.Tx, ticketID int64) (Transition, error) {
	return l.apply(ctx, tx, ticketID, store.ActionCall)
}

func (l *Lifecycle) Start(ctx context.Context, tx store.Tx, ticketID int64) (Transition, error) {
	return l.apply(ctx, tx, ticketID, store.ActionStart)
}

func (l *Lifecycle) Complete(ctx context.Context, tx store.Tx, ticketID int64) (Transition, error) {
	return l.apply(ctx, tx, ticketID, store.ActionComplete)
}

func (l *Lifecycle) Cancel(ctx context.Context, tx store.Tx, ticketID int64) (Transition, error) {
	return l.apply(ctx, tx, ticketID, store.ActionCancel)
}

func (l *Lifecycle) Requeue(ctx context.Context, tx store.Tx, ticketID int64) (Transition, error) {
	return l.apply(ctx, tx, ticketID, store.ActionRequeue)
}

// SetStatus moves the ticket to an explicit status through the matching transition.
func (l *Lifecycle) SetStatus(ctx context.Context, tx store.Tx, ticketID int64, status string) (Transition, error) {
	action, ok := store.ActionForStatus(status)
	if !ok {
		return Transition{}, store.ErrInvalidStatus
	}
	return l.apply(ctx, tx, ticketID, action)
}

func (l *Lifecycle) allowed(action, from string) bool {
	if action == store.ActionComplete {
		return store.ValidCompletion(from, l.strictCompletion)
	}
	return store.ValidTransition(action, from)
}

func (l *Lifecycle) apply(ctx context.Context, tx store.Tx, ticketID int64, action string) (Transition, error) {
	ctx, span := l.tracer.Start(ctx, "queue.Transition", trace.WithAttributes(
		attribute.Int64("ticket_id", ticketID),
		attribute.String("action", action),
	))
	defer span.End()

	out, err := l.transition(ctx, tx, ticketID, action)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Transition{}, err
	}
	if l.transitions != nil {
		l.transitions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("to", out.Ticket.QueueStatus),
		))
	}
	return out, nil
}

func (l *Lifecycle) transition(ctx context.Context, tx store.Tx, ticketID int64, action string) (Transition, error) {
	ticket, err := tx.GetTicket(ctx, ticketID)
	if err != nil {
		return Transition{}, err
	}
	from := ticket.QueueStatus
	if !l.allowed(action, from) {
		return Transition{}, store.InvalidTransition(action, from)
	}
	visit, err := tx.GetVisit(ctx, ticket.VisitID)
	if err != nil {
		return Transition{}, err
	}

	now := l.now()
	var eventType string
	switch action {
	case store.ActionCall:
		ticket.QueueStatus = models.TicketCalled
		ticket.CalledAt = &now
		eventType = store.EventTicketCalled
	case store.ActionStart:
		ticket.QueueStatus = models.TicketInProgress
		ticket.StartedAt = &now
		visit.VisitStatus = models.VisitInProgress
		eventType = store.EventTicketStarted
	case store.ActionComplete:
		ticket.QueueStatus = models.TicketCompleted
		ticket.CompletedAt = &now
		visit.VisitStatus = models.VisitCompleted
		visit.CompletedDatetime = &now
		eventType = store.EventTicketCompleted
	case store.ActionCancel:
		ticket.QueueStatus = models.TicketCancelled
		ticket.CompletedAt = &now
		visit.VisitStatus = models.VisitCancelled
		eventType = store.EventTicketCancelled
	case store.ActionRequeue:
		ticket.QueueStatus = models.TicketWaiting
		ticket.CalledAt = nil
		eventType = store.EventTicketRequeued
	default:
		return Transition{}, fmt.Errorf("unknown ticket action %q", action)
	}
	ticket.UpdatedAt = now
	visit.UpdatedAt = now

	if err := tx.UpdateTicket(ctx, ticket); err != nil {
		return Transition{}, err
	}
	if err := tx.UpdateVisit(ctx, visit); err != nil {
		return Transition{}, err
	}
	payload, err := store.TicketEventPayload(ticket, from)
	if err != nil {
		return Transition{}, fmt.Errorf("encode ticket event: %w", err)
	}
	if err := tx.AppendTicketEvent(ctx, ticket.TicketID, eventType, payload, now); err != nil {
		return Transition{}, err
	}
	return Transition{Ticket: ticket, Visit: visit, OldStatus: from}, nil
}
