package memory

import (
	"context"
	"time"

	"clinicq/queue-service/internal/models"
	"clinicq/queue-service/internal/store"
)

type tx struct {
	state *state
	now   func() time.Time
}

func dayKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

func (t *tx) LockQueueDay(ctx context.Context, queueDate time.Time) error {
	t.state.queueDays[dayKey(queueDate)]++
	return nil
}

func (t *tx) QueueDepth(ctx context.Context, queueDate time.Time) (store.QueueDepth, error) {
	var depth store.QueueDepth
	for _, ticket := range t.state.tickets {
		if !ticket.QueueDate.Equal(queueDate) || !models.IsActiveTicketStatus(ticket.QueueStatus) {
			continue
		}
		depth.Active++
		if ticket.QueuePosition > depth.MaxPosition {
			depth.MaxPosition = ticket.QueuePosition
		}
	}
	return depth, nil
}

func (t *tx) GetPatient(ctx context.Context, patientID int64) (models.Patient, error) {
	p, ok := t.state.patients[patientID]
	if !ok || p.DeletedAt != nil {
		return models.Patient{}, store.ErrPatientNotFound
	}
	return p, nil
}

func (t *tx) FindPatientByPhone(ctx context.Context, phone string) (models.Patient, bool, error) {
	for _, p := range t.state.patients {
		if p.DeletedAt == nil && p.PhoneNumber != nil && *p.PhoneNumber == phone {
			return p, true, nil
		}
	}
	return models.Patient{}, false, nil
}

func (t *tx) CreatePatient(ctx context.Context, patient models.Patient) (models.Patient, error) {
	if patient.PhoneNumber != nil {
		for _, p := range t.state.patients {
			if p.DeletedAt == nil && p.PhoneNumber != nil && *p.PhoneNumber == *patient.PhoneNumber {
				return models.Patient{}, store.ErrWriteConflict
			}
		}
	}
	now := t.now()
	patient.PatientID = t.state.id()
	patient.CreatedAt = now
	patient.UpdatedAt = now
	t.state.patients[patient.PatientID] = patient
	return patient, nil
}

func (t *tx) GetDepartment(ctx context.Context, departmentID int64) (models.Department, error) {
	d, ok := t.state.departments[departmentID]
	if !ok {
		return models.Department{}, store.ErrDepartmentNotFound
	}
	return d, nil
}

func (t *tx) GetDoctor(ctx context.Context, doctorID int64) (models.Doctor, error) {
	d, ok := t.state.doctors[doctorID]
	if !ok {
		return models.Doctor{}, store.ErrDoctorNotFound
	}
	return d, nil
}

func (t *tx) FindVisitForDay(ctx context.Context, patientID int64, visitDate time.Time, statuses []string) (models.Visit, bool, error) {
	var found models.Visit
	ok := false
	for _, v := range t.state.visits {
		if v.PatientID != patientID || !v.VisitDate.Equal(visitDate) || !hasStatus(statuses, v.VisitStatus) {
			continue
		}
		if !ok || v.VisitID < found.VisitID {
			found, ok = v, true
		}
	}
	return found, ok, nil
}

func hasStatus(statuses []string, status string) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (t *tx) GetVisit(ctx context.Context, visitID int64) (models.Visit, error) {
	v, ok := t.state.visits[visitID]
	if !ok {
		return models.Visit{}, store.ErrVisitNotFound
	}
	return v, nil
}

func (t *tx) openVisitTaken(v models.Visit) bool {
	if !models.IsOpenVisitStatus(v.VisitStatus) {
		return false
	}
	for _, other := range t.state.visits {
		if other.VisitID != v.VisitID && other.PatientID == v.PatientID &&
			other.VisitDate.Equal(v.VisitDate) && models.IsOpenVisitStatus(other.VisitStatus) {
			return true
		}
	}
	return false
}

func (t *tx) CreateVisit(ctx context.Context, visit models.Visit) (models.Visit, error) {
	if t.openVisitTaken(visit) {
		return models.Visit{}, store.ErrWriteConflict
	}
	now := t.now()
	visit.VisitID = t.state.id()
	visit.CreatedAt = now
	visit.UpdatedAt = now
	t.state.visits[visit.VisitID] = visit
	return visit, nil
}

func (t *tx) UpdateVisit(ctx context.Context, visit models.Visit) error {
	if _, ok := t.state.visits[visit.VisitID]; !ok {
		return store.ErrVisitNotFound
	}
	if t.openVisitTaken(visit) {
		return store.ErrWriteConflict
	}
	t.state.visits[visit.VisitID] = visit
	return nil
}

func (t *tx) GetTicket(ctx context.Context, ticketID int64) (models.QueueTicket, error) {
	ticket, ok := t.state.tickets[ticketID]
	if !ok {
		return models.QueueTicket{}, store.ErrTicketNotFound
	}
	return ticket, nil
}

func (t *tx) FindTicketByVisit(ctx context.Context, visitID int64) (models.QueueTicket, bool, error) {
	for _, ticket := range t.state.tickets {
		if ticket.VisitID == visitID {
			return ticket, true, nil
		}
	}
	return models.QueueTicket{}, false, nil
}

func (t *tx) CreateTicket(ctx context.Context, ticket models.QueueTicket) (models.QueueTicket, error) {
	for _, other := range t.state.tickets {
		if other.VisitID == ticket.VisitID {
			return models.QueueTicket{}, store.ErrWriteConflict
		}
		if other.QueueDate.Equal(ticket.QueueDate) && other.QueuePosition == ticket.QueuePosition &&
			models.IsActiveTicketStatus(other.QueueStatus) && models.IsActiveTicketStatus(ticket.QueueStatus) {
			return models.QueueTicket{}, store.ErrWriteConflict
		}
	}
	now := t.now()
	ticket.TicketID = t.state.id()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	t.state.tickets[ticket.TicketID] = ticket
	return ticket, nil
}

func (t *tx) UpdateTicket(ctx context.Context, ticket models.QueueTicket) error {
	if _, ok := t.state.tickets[ticket.TicketID]; !ok {
		return store.ErrTicketNotFound
	}
	t.state.tickets[ticket.TicketID] = ticket
	return nil
}

func (t *tx) AppendTicketEvent(ctx context.Context, ticketID int64, eventType string, payload []byte, createdAt time.Time) error {
	events := t.state.events[ticketID]
	prev := ""
	if len(events) > 0 {
		prev = events[len(events)-1].Hash
	}
	seq := len(events) + 1
	event := store.TicketEvent{
		TicketID:  ticketID,
		TicketSeq: seq,
		Type:      eventType,
		Payload:   append([]byte(nil), payload...),
		CreatedAt: createdAt,
		PrevHash:  prev,
		Hash:      store.ComputeTicketEventHash(prev, ticketID, eventType, payload, createdAt, seq),
	}
	t.state.events[ticketID] = append(events, event)
	return nil
}

func (t *tx) FindActiveOTP(ctx context.Context, phone string) (models.OTPRecord, bool, error) {
	var found models.OTPRecord
	ok := false
	for _, r := range t.state.otps {
		if r.PhoneNumber != phone || r.IsVerified || r.IsExpired {
			continue
		}
		if !ok || r.OTPID > found.OTPID {
			found, ok = r, true
		}
	}
	return found, ok, nil
}

func (t *tx) LatestOTP(ctx context.Context, phone string) (models.OTPRecord, bool, error) {
	var found models.OTPRecord
	ok := false
	for _, r := range t.state.otps {
		if r.PhoneNumber == phone && (!ok || r.OTPID > found.OTPID) {
			found, ok = r, true
		}
	}
	return found, ok, nil
}

func (t *tx) ExpireStaleOTPs(ctx context.Context, phone string, now time.Time) error {
	for id, r := range t.state.otps {
		if r.PhoneNumber == phone && !r.IsVerified && !r.IsExpired && !now.Before(r.ExpiresAt) {
			r.IsExpired = true
			r.UpdatedAt = now
			t.state.otps[id] = r
		}
	}
	return nil
}

func (t *tx) CreateOTP(ctx context.Context, record models.OTPRecord) (models.OTPRecord, error) {
	record.OTPID = t.state.id()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = t.now()
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = record.CreatedAt
	}
	t.state.otps[record.OTPID] = record
	return record, nil
}

func (t *tx) UpdateOTP(ctx context.Context, record models.OTPRecord) error {
	if _, ok := t.state.otps[record.OTPID]; !ok {
		return store.ErrInvalidOrExpiredOTP
	}
	t.state.otps[record.OTPID] = record
	return nil
}

func (t *tx) InsertCheckInLog(ctx context.Context, entry models.CheckInLog) error {
	entry.CheckInLogID = t.state.id()
	t.state.checkIns = append(t.state.checkIns, entry)
	return nil
}
