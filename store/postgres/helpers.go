package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mnbuhl/atomizer/lease"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// constraintName returns the violated constraint of a PostgreSQL error.
func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func tokenValue(t lease.Token) *string {
	if t.IsZero() {
		return nil
	}
	return nilIfEmpty(t.String())
}

func parseTokenValue(s *string) (lease.Token, error) {
	if s == nil || *s == "" {
		return lease.Token{}, nil
	}
	t, err := lease.ParseToken(*s)
	if err != nil {
		return lease.Token{}, fmt.Errorf("atomizer/postgres: parse lease token: %w", err)
	}
	return t, nil
}
