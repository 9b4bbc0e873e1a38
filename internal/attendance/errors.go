package attendance

import (
	"errors"
	"fmt"
)

var (
	errMissingStore    = errors.New("row store is required")
	errMissingMemberID = errors.New("member identifier is required")
	errMissingDate     = errors.New("date is required")
	// ErrLockUnavailable indicates the serialization point could not be acquired.
	ErrLockUnavailable = errors.New("attendance: check-in lock unavailable")
)

// ServiceError carries a stable "<operation>.<reason>" code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opReconcilerNew = "attendance.reconciler.new"
	opReconcile     = "attendance.reconcile"
	opListDay       = "attendance.list_day"
)

const (
	reasonMissingStore     = "missing_store"
	reasonMissingMember    = "missing_member_id"
	reasonMissingDate      = "missing_date"
	reasonInvalidPartition = "invalid_partitioning"
	reasonLockFailed       = "lock_failed"
	reasonListFailed       = "list_failed"
	reasonAppendFailed     = "append_failed"
	reasonUpdateFailed     = "update_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
