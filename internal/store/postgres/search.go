package postgres

import (
	"context"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"clinicq/queue-service/internal/models"
	"clinicq/queue-service/internal/store"
)

var dialect = goqu.Dialect("postgres")

// searchPatientsSQL builds the filtered patient query. Text filters match
// case-insensitive substrings, the rest match exactly.
func searchPatientsSQL(filter store.PatientFilter) (string, []any, error) {
	ds := dialect.From("patients").Prepared(true).
		Select(goqu.L(patientColumns)).
		Where(goqu.C("deleted_at").IsNull())

	if filter.PatientID != nil {
		ds = ds.Where(goqu.C("patient_id").Eq(*filter.PatientID))
	}
	if filter.FirstName != "" {
		ds = ds.Where(goqu.C("first_name").ILike(likePattern(filter.FirstName)))
	}
	if filter.LastName != "" {
		ds = ds.Where(goqu.C("last_name").ILike(likePattern(filter.LastName)))
	}
	if filter.PhoneNumber != "" {
		ds = ds.Where(goqu.C("phone_number").Like(likePattern(filter.PhoneNumber)))
	}
	if filter.BloodGroup != "" {
		ds = ds.Where(goqu.C("blood_group").Eq(filter.BloodGroup))
	}
	if filter.PatientType != "" {
		ds = ds.Where(goqu.C("patient_type").Eq(filter.PatientType))
	}
	if filter.IsActive != nil {
		ds = ds.Where(goqu.C("is_active").Eq(*filter.IsActive))
	}
	ds = ds.Order(goqu.C("patient_id").Asc())
	if filter.Limit > 0 {
		ds = ds.Limit(uint(filter.Limit))
	}
	return ds.ToSQL()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(value string) string {
	return "%" + likeEscaper.Replace(value) + "%"
}

func (s *Store) SearchPatients(ctx context.Context, filter store.PatientFilter) ([]models.Patient, error) {
	query, args, err := searchPatientsSQL(filter)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []models.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return patients, nil
}
