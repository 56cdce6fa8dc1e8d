// Package memory is an in-process implementation of store.Store. Units of work
// are serialized by one mutex and run against a copy of the state that replaces
// the live state only on commit.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"clinicq/queue-service/internal/models"
	"clinicq/queue-service/internal/store"
)

type state struct {
	patients    map[int64]models.Patient
	departments map[int64]models.Department
	doctors     map[int64]models.Doctor
	visits      map[int64]models.Visit
	tickets     map[int64]models.QueueTicket
	otps        map[int64]models.OTPRecord
	checkIns    []models.CheckInLog
	events      map[int64][]store.TicketEvent
	queueDays   map[string]int
	nextID      int64
}

func newState() *state {
	return &state{
		patients:    map[int64]models.Patient{},
		departments: map[int64]models.Department{},
		doctors:     map[int64]models.Doctor{},
		visits:      map[int64]models.Visit{},
		tickets:     map[int64]models.QueueTicket{},
		otps:        map[int64]models.OTPRecord{},
		events:      map[int64][]store.TicketEvent{},
		queueDays:   map[string]int{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.patients {
		c.patients[k] = v
	}
	for k, v := range s.departments {
		c.departments[k] = v
	}
	for k, v := range s.doctors {
		c.doctors[k] = v
	}
	for k, v := range s.visits {
		c.visits[k] = v
	}
	for k, v := range s.tickets {
		c.tickets[k] = v
	}
	for k, v := range s.otps {
		c.otps[k] = v
	}
	c.checkIns = append([]models.CheckInLog(nil), s.checkIns...)
	for k, v := range s.events {
		c.events[k] = append([]store.TicketEvent(nil), v...)
	}
	for k, v := range s.queueDays {
		c.queueDays[k] = v
	}
	c.nextID = s.nextID
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

func New() *Store {
	return &Store{state: newState(), now: time.Now}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	err := fn(&tx{state: work, now: s.now})
	if err != nil {
		if _, commit := store.SplitCommit(err); !commit {
			return err
		}
	}
	s.state = work
	return err
}

// Seed helpers write reference data directly. IDs are assigned when zero.

func (s *Store) AddPatient(p models.Patient) models.Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.PatientID == 0 {
		p.PatientID = s.state.id()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
	}
	s.state.patients[p.PatientID] = p
	return p
}

func (s *Store) AddDepartment(d models.Department) models.Department {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.DepartmentID == 0 {
		d.DepartmentID = s.state.id()
	}
	s.state.departments[d.DepartmentID] = d
	return d
}

func (s *Store) AddDoctor(d models.Doctor) models.Doctor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.DoctorID == 0 {
		d.DoctorID = s.state.id()
	}
	s.state.doctors[d.DoctorID] = d
	return d
}

func (s *Store) AddVisit(v models.Visit) models.Visit {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.VisitID == 0 {
		v.VisitID = s.state.id()
	}
	s.state.visits[v.VisitID] = v
	return v
}

// Tickets returns a snapshot of every ticket, ordered by id.
func (s *Store) Tickets() []models.QueueTicket {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.QueueTicket, 0, len(s.state.tickets))
	for _, t := range s.state.tickets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketID < out[j].TicketID })
	return out
}

// Visits returns a snapshot of every visit, ordered by id.
func (s *Store) Visits() []models.Visit {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Visit, 0, len(s.state.visits))
	for _, v := range s.state.visits {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VisitID < out[j].VisitID })
	return out
}

// OTPs returns a snapshot of every OTP record for phone, oldest first.
func (s *Store) OTPs(phone string) []models.OTPRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.OTPRecord
	for _, r := range s.state.otps {
		if r.PhoneNumber == phone {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OTPID < out[j].OTPID })
	return out
}

func (s *Store) CheckInLogs() []models.CheckInLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CheckInLog(nil), s.state.checkIns...)
}

func (s *Store) SearchPatients(ctx context.Context, filter store.PatientFilter) ([]models.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Patient
	for _, p := range s.state.patients {
		if p.DeletedAt != nil || !matchPatient(p, filter) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PatientID < out[j].PatientID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func matchPatient(p models.Patient, f store.PatientFilter) bool {
	if f.PatientID != nil && p.PatientID != *f.PatientID {
		return false
	}
	if f.FirstName != "" && !containsFold(p.FirstName, f.FirstName) {
		return false
	}
	if f.LastName != "" && !containsFold(p.LastName, f.LastName) {
		return false
	}
	if f.PhoneNumber != "" && (p.PhoneNumber == nil || !strings.Contains(*p.PhoneNumber, f.PhoneNumber)) {
		return false
	}
	if f.BloodGroup != "" && (p.BloodGroup == nil || *p.BloodGroup != f.BloodGroup) {
		return false
	}
	if f.PatientType != "" && (p.PatientType == nil || *p.PatientType != f.PatientType) {
		return false
	}
	if f.IsActive != nil && p.IsActive != *f.IsActive {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func (s *Store) ListDoctorQueue(ctx context.Context, doctorID int64, queueDate time.Time) ([]store.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []store.QueueEntry
	for _, t := range s.state.tickets {
		if !t.QueueDate.Equal(queueDate) || !models.IsActiveTicketStatus(t.QueueStatus) {
			continue
		}
		v, ok := s.state.visits[t.VisitID]
		if !ok || v.DoctorID == nil || *v.DoctorID != doctorID {
			continue
		}
		entry := store.QueueEntry{Ticket: t, CheckInDatetime: v.CheckInDatetime}
		if p, ok := s.state.patients[v.PatientID]; ok {
			entry.PatientName = p.FullName()
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket.QueuePosition < out[j].Ticket.QueuePosition })
	return out, nil
}

func (s *Store) ListTicketEvents(ctx context.Context, ticketID int64) ([]store.TicketEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.TicketEvent(nil), s.state.events[ticketID]...), nil
}
