package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"clinicq/queue-service/internal/models"
	"clinicq/queue-service/internal/store"
)

type pgTx struct {
	tx  pgx.Tx
	now func() time.Time
}

// LockQueueDay takes the row lock of the date's queue_days row. Admissions
// for one date queue up behind it until the holder commits.
func (t *pgTx) LockQueueDay(ctx context.Context, queueDate time.Time) error {
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO queue_days (queue_date) VALUES ($1::date)
		ON CONFLICT (queue_date) DO NOTHING
	`, dateParam(queueDate)); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `
		UPDATE queue_days SET admissions = admissions + 1, updated_at = $2
		WHERE queue_date = $1::date
	`, dateParam(queueDate), t.now())
	return err
}

func (t *pgTx) QueueDepth(ctx context.Context, queueDate time.Time) (store.QueueDepth, error) {
	var depth store.QueueDepth
	row := t.tx.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(MAX(queue_position), 0)
		FROM queue_tickets
		WHERE queue_date = $1::date AND queue_status = ANY($2)
	`, dateParam(queueDate), models.ActiveTicketStatuses)
	if err := row.Scan(&depth.Active, &depth.MaxPosition); err != nil {
		return store.QueueDepth{}, err
	}
	return depth, nil
}

const patientColumns = `patient_id, first_name, last_name, phone_number, date_of_birth, gender, address,
	blood_group, rfid_tag, preferred_language, doctor_id, patient_type, is_active,
	emergency_contact_name, emergency_contact_number, created_at, updated_at, deleted_at`

func scanPatient(row pgx.Row) (models.Patient, error) {
	var p models.Patient
	err := row.Scan(&p.PatientID, &p.FirstName, &p.LastName, &p.PhoneNumber, &p.DateOfBirth, &p.Gender, &p.Address,
		&p.BloodGroup, &p.RFIDTag, &p.PreferredLanguage, &p.DoctorID, &p.PatientType, &p.IsActive,
		&p.EmergencyContactName, &p.EmergencyContactNumber, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	return p, err
}

func (t *pgTx) GetPatient(ctx context.Context, patientID int64) (models.Patient, error) {
	p, err := scanPatient(t.tx.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE patient_id = $1 AND deleted_at IS NULL
	`, patientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Patient{}, store.ErrPatientNotFound
	}
	return p, err
}

func (t *pgTx) FindPatientByPhone(ctx context.Context, phone string) (models.Patient, bool, error) {
	p, err := scanPatient(t.tx.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE phone_number = $1 AND deleted_at IS NULL
		ORDER BY patient_id
		LIMIT 1
	`, phone))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Patient{}, false, nil
	}
	if err != nil {
		return models.Patient{}, false, err
	}
	return p, true, nil
}

func (t *pgTx) CreatePatient(ctx context.Context, p models.Patient) (models.Patient, error) {
	now := t.now()
	row := t.tx.QueryRow(ctx, `
		INSERT INTO patients (
			first_name, last_name, phone_number, date_of_birth, gender, address, blood_group,
			rfid_tag, preferred_language, doctor_id, patient_type, is_active,
			emergency_contact_name, emergency_contact_number, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$15)
		RETURNING patient_id, created_at, updated_at
	`, p.FirstName, p.LastName, p.PhoneNumber, p.DateOfBirth, p.Gender, p.Address, p.BloodGroup,
		p.RFIDTag, p.PreferredLanguage, p.DoctorID, p.PatientType, p.IsActive,
		p.EmergencyContactName, p.EmergencyContactNumber, now)
	if err := row.Scan(&p.PatientID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return models.Patient{}, err
	}
	return p, nil
}

func (t *pgTx) GetDepartment(ctx context.Context, departmentID int64) (models.Department, error) {
	var d models.Department
	row := t.tx.QueryRow(ctx, `
		SELECT department_id, department_code, department_name, COALESCE(description, ''),
			average_service_time, max_queue_size, is_active
		FROM departments
		WHERE department_id = $1
	`, departmentID)
	err := row.Scan(&d.DepartmentID, &d.DepartmentCode, &d.DepartmentName, &d.Description,
		&d.AverageServiceTime, &d.MaxQueueSize, &d.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Department{}, store.ErrDepartmentNotFound
	}
	return d, err
}

func (t *pgTx) GetDoctor(ctx context.Context, doctorID int64) (models.Doctor, error) {
	var d models.Doctor
	row := t.tx.QueryRow(ctx, `
		SELECT doctor_id, first_name, last_name, COALESCE(specialization, ''), COALESCE(phone_number, ''),
			COALESCE(email, ''), department_id, is_available, is_active
		FROM doctors
		WHERE doctor_id = $1
	`, doctorID)
	err := row.Scan(&d.DoctorID, &d.FirstName, &d.LastName, &d.Specialization, &d.PhoneNumber,
		&d.Email, &d.DepartmentID, &d.IsAvailable, &d.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Doctor{}, store.ErrDoctorNotFound
	}
	return d, err
}

func (t *pgTx) InsertCheckInLog(ctx context.Context, entry models.CheckInLog) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO check_in_logs (
			visit_id, patient_id, check_in_method, qr_code_value, check_in_datetime, success, error_message
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.VisitID, entry.PatientID, entry.CheckInMethod, nullIfEmpty(entry.QRCodeValue),
		entry.CheckInDatetime, entry.Success, nullIfEmpty(entry.ErrorMessage))
	return err
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
