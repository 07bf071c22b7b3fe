package services

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/iota-uz/orgadmin/modules/org/domain/orgtree"
)

// mapRepoError turns repository and domain errors into ServiceErrors.
// Unknown errors pass through and surface as 500.
func mapRepoError(err error) error {
	if err == nil {
		return nil
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr
	}

	switch {
	case errors.Is(err, orgtree.ErrNotFound), errors.Is(err, pgx.ErrNoRows):
		return newServiceError(http.StatusNotFound, "ORG_NOT_FOUND", "org unit not found", err)
	case errors.Is(err, orgtree.ErrCycle):
		recordWriteConflict("cycle")
		return newServiceError(http.StatusUnprocessableEntity, "ORG_CYCLE", "cannot move an org unit into its own subtree", err)
	case errors.Is(err, orgtree.ErrNotPermutation):
		recordWriteConflict("order")
		return newServiceError(http.StatusUnprocessableEntity, "ORG_INVALID_ORDER", "org_ids must list every sibling exactly once", err)
	case errors.Is(err, orgtree.ErrDuplicateCode):
		recordWriteConflict("unique")
		return newServiceError(http.StatusConflict, "ORG_CODE_CONFLICT", "code already exists", err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "23505": // unique_violation
		recordWriteConflict("unique")
		return newServiceError(http.StatusConflict, "ORG_CODE_CONFLICT", "code already exists", err)
	case "23503": // foreign_key_violation
		recordWriteConflict("foreign_key")
		return newServiceError(http.StatusUnprocessableEntity, "ORG_PARENT_NOT_FOUND", "parent_id not found", err)
	case "40001", "40P01": // serialization_failure, deadlock_detected
		recordWriteConflict("concurrent")
		return newServiceError(http.StatusConflict, "ORG_CONCURRENT_UPDATE", "tree changed concurrently, reload and retry", err)
	default:
		return newServiceError(http.StatusInternalServerError, "ORG_INTERNAL", fmt.Sprintf("database error (%s)", pgErr.Code), err)
	}
}
