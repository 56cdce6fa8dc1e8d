package store

import "clinicq/queue-service/internal/models"

const (
	ActionCall     = "call"
	ActionStart    = "start"
	ActionComplete = "complete"
	ActionCancel   = "cancel"
	ActionRequeue  = "requeue"
)

var transitionMap = map[string][]string{
	ActionCall:     {models.TicketWaiting},
	ActionStart:    {models.TicketWaiting, models.TicketCalled},
	ActionComplete: {models.TicketInProgress},
	ActionCancel:   {models.TicketWaiting, models.TicketCalled, models.TicketInProgress},
	ActionRequeue:  {models.TicketCalled},
}

// manualCompletion widens complete to tickets that never reached IN_PROGRESS,
// e.g. walk-ins closed from the front desk.
var manualCompletion = []string{models.TicketWaiting, models.TicketCalled}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// ValidCompletion applies the completion rule, optionally allowing manual override.
func ValidCompletion(fromStatus string, strict bool) bool {
	if ValidTransition(ActionComplete, fromStatus) {
		return true
	}
	if strict {
		return false
	}
	for _, status := range manualCompletion {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// ActionForStatus maps an explicit target status to the lifecycle action reaching it.
func ActionForStatus(status string) (string, bool) {
	switch status {
	case models.TicketWaiting:
		return ActionRequeue, true
	case models.TicketCalled:
		return ActionCall, true
	case models.TicketInProgress:
		return ActionStart, true
	case models.TicketCompleted:
		return ActionComplete, true
	case models.TicketCancelled:
		return ActionCancel, true
	}
	return "", false
}
