package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"clinicq/queue-service/internal/store"
)

func TestRetryable(t *testing.T) {
	for _, code := range []string{"40001", "40P01", "23505"} {
		err := fmt.Errorf("commit: %w", &pgconn.PgError{Code: code})
		if !retryable(err) {
			t.Fatalf("expected %s to be retryable", code)
		}
	}
	if retryable(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("foreign key violation must not be retried")
	}
	if retryable(store.ErrTicketNotFound) || retryable(errors.New("boom")) {
		t.Fatalf("domain errors must not be retried")
	}
}

func TestSearchPatientsSQL(t *testing.T) {
	id := int64(7)
	active := false
	query, args, err := searchPatientsSQL(store.PatientFilter{
		PatientID: &id,
		FirstName: "50%",
		IsActive:  &active,
		Limit:     20,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, fragment := range []string{`"deleted_at" IS NULL`, `"patient_id" = $1`, `"first_name" ILIKE $2`, `ORDER BY "patient_id" ASC`, "LIMIT"} {
		if !strings.Contains(query, fragment) {
			t.Fatalf("expected %q in %s", fragment, query)
		}
	}
	if len(args) < 3 {
		t.Fatalf("expected bound args, got %v", args)
	}
	if args[1] != `%50\%%` {
		t.Fatalf("expected escaped pattern, got %v", args[1])
	}
}

func TestLikePattern(t *testing.T) {
	if got := likePattern(`a_b\c`); got != `%a\_b\\c%` {
		t.Fatalf("unexpected pattern %q", got)
	}
}
