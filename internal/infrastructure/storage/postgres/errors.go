package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"almacen/internal/core/apperror"
)

// PostgreSQL error codes mapped to domain errors.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// PendingRequisitionConstraint is the partial unique index that keeps one
// pendiente requisition per article.
const PendingRequisitionConstraint = "uq_requisitions_pending_article"

// MapError converts driver errors into application errors. Errors it does not
// recognise are returned unchanged.
func MapError(err error) error {
	return mapError(err)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.AsAppError(err); ok {
		return err
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgUniqueViolation:
		if pgErr.ConstraintName == PendingRequisitionConstraint {
			return apperror.NewConcurrentModification("requisition", pgErr.Detail).WithCause(err)
		}
		return apperror.NewDuplicate(pgErr.TableName, pgErr.ConstraintName, pgErr.Detail).WithCause(err)
	case pgForeignKeyViolation:
		return apperror.NewValidation("referenced record does not exist").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	case pgCheckViolation:
		return apperror.NewValidation("value violates a check constraint").
			WithDetail("constraint", pgErr.ConstraintName).
			WithCause(err)
	case pgSerializationFailure, pgDeadlockDetected:
		return apperror.NewConcurrentModification(pgErr.TableName, pgErr.Code).WithCause(err)
	}
	return err
}

// notFound maps pgx.ErrNoRows to a NotFound error for entity/key.
func notFound(err error, entity string, key any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NewNotFound(entity, key)
	}
	return mapError(err)
}
