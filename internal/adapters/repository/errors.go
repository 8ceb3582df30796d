package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"github.com/okian/tandem/internal/domain/errs"
	"github.com/okian/tandem/pkg/metrics"
)

const pgUniqueViolation = "23505"

var domainErrors = []error{
	errs.ErrConflict,
	errs.ErrNotFound,
	errs.ErrQuotaExceeded,
	errs.ErrSelfReference,
	errs.ErrStorage,
	errs.ErrUnknownMilestone,
	errs.ErrInvalidInput,
}

// translate maps driver failures onto the domain sentinels.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return err
		}
	}
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, errs.ErrConflict)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, errs.ErrNotFound)
	default:
		metrics.RecordStoreError(op)
		return fmt.Errorf("%s: %w: %w", op, errs.ErrStorage, err)
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isExpected(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || isUniqueViolation(err)
}
