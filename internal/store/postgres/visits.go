package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"clinicq/queue-service/internal/models"
	"clinicq/queue-service/internal/store"
)

const visitColumns = `visit_id, patient_id, department_id, doctor_id, visit_date, check_in_datetime,
	COALESCE(check_in_method, ''), visit_status, completed_datetime, created_at, updated_at`

func scanVisit(row pgx.Row) (models.Visit, error) {
	var v models.Visit
	err := row.Scan(&v.VisitID, &v.PatientID, &v.DepartmentID, &v.DoctorID, &v.VisitDate, &v.CheckInDatetime,
		&v.CheckInMethod, &v.VisitStatus, &v.CompletedDatetime, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}

func (t *pgTx) FindVisitForDay(ctx context.Context, patientID int64, visitDate time.Time, statuses []string) (models.Visit, bool, error) {
	v, err := scanVisit(t.tx.QueryRow(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE patient_id = $1 AND visit_date = $2::date AND visit_status = ANY($3)
		ORDER BY visit_id
		LIMIT 1
		FOR UPDATE
	`, patientID, dateParam(visitDate), statuses))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Visit{}, false, nil
	}
	if err != nil {
		return models.Visit{}, false, err
	}
	return v, true, nil
}

func (t *pgTx) GetVisit(ctx context.Context, visitID int64) (models.Visit, error) {
	v, err := scanVisit(t.tx.QueryRow(ctx, `
		SELECT `+visitColumns+`
		FROM visits
		WHERE visit_id = $1
		FOR UPDATE
	`, visitID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Visit{}, store.ErrVisitNotFound
	}
	return v, err
}

func (t *pgTx) CreateVisit(ctx context.Context, v models.Visit) (models.Visit, error) {
	now := t.now()
	row := t.tx.QueryRow(ctx, `
		INSERT INTO visits (
			patient_id, department_id, doctor_id, visit_date, check_in_datetime, check_in_method,
			visit_status, completed_datetime, created_at, updated_at
		) VALUES ($1,$2,$3,$4::date,$5,$6,$7,$8,$9,$9)
		RETURNING visit_id, created_at, updated_at
	`, v.PatientID, v.DepartmentID, v.DoctorID, dateParam(v.VisitDate), v.CheckInDatetime,
		nullIfEmpty(v.CheckInMethod), v.VisitStatus, v.CompletedDatetime, now)
	if err := row.Scan(&v.VisitID, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return models.Visit{}, err
	}
	return v, nil
}

func (t *pgTx) UpdateVisit(ctx context.Context, v models.Visit) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE visits SET
			department_id = $2, doctor_id = $3, check_in_datetime = $4, check_in_method = $5,
			visit_status = $6, completed_datetime = $7, updated_at = $8
		WHERE visit_id = $1
	`, v.VisitID, v.DepartmentID, v.DoctorID, v.CheckInDatetime, nullIfEmpty(v.CheckInMethod),
		v.VisitStatus, v.CompletedDatetime, v.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrVisitNotFound
	}
	return nil
}
