package repo

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// postgres error codes this package distinguishes from a generic failure.
// See https://www.postgresql.org/docs/current/errcodes-appendix.html.
const (
	pgUniqueViolation = "23505"
)

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
