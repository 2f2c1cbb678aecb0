package engine

import (
	"errors"
	"fmt"

	"bountygraph/internal/repo"
)

// Kind classifies a rejected state transition.
type Kind string

const (
	KindAuthorization Kind = "authorization"
	KindStateConflict Kind = "state_conflict"
	KindValidation    Kind = "validation"
	KindResource      Kind = "resource"
	KindNotFound      Kind = "not_found"
)

// Error is a rejection raised by a ledger operation. Sentinels are compared
// with errors.Is; wrapped errors keep the sentinel's code and kind.
type Error struct {
	Code    string
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Code: code, Kind: kind, Message: msg}
}

var (
	ErrUnauthorized           = newError(KindAuthorization, "UNAUTHORIZED", "signer is not permitted to perform this action")
	ErrNotDesignatedWorker    = newError(KindAuthorization, "NOT_DESIGNATED_WORKER", "only the task's designated worker may claim")
	ErrInvalidCreator         = newError(KindAuthorization, "INVALID_CREATOR", "creator does not match the dispute record")
	ErrInvalidWorker          = newError(KindAuthorization, "INVALID_WORKER", "worker does not match the dispute record")
	ErrAlreadyInitialized     = newError(KindStateConflict, "ALREADY_INITIALIZED", "graph already initialized for this authority")
	ErrTaskAlreadyExists      = newError(KindStateConflict, "TASK_ALREADY_EXISTS", "task id already used in this graph")
	ErrTaskNotOpen            = newError(KindStateConflict, "TASK_NOT_OPEN", "task is not open")
	ErrTaskSettled            = newError(KindStateConflict, "TASK_SETTLED", "task escrow is already settled")
	ErrAlreadyCompleted       = newError(KindStateConflict, "ALREADY_COMPLETED", "task already completed")
	ErrDuplicateReceipt       = newError(KindStateConflict, "DUPLICATE_RECEIPT", "agent already submitted a receipt for this task")
	ErrDependencyNotSatisfied = newError(KindStateConflict, "DEPENDENCY_NOT_SATISFIED", "a dependency task has no receipt yet")
	ErrWorkerAlreadyAssigned  = newError(KindStateConflict, "WORKER_ALREADY_ASSIGNED", "task already has a designated worker")
	ErrDisputeInProgress      = newError(KindStateConflict, "DISPUTE_IN_PROGRESS", "task has a raised dispute")
	ErrDisputeAlreadyExists   = newError(KindStateConflict, "DISPUTE_ALREADY_EXISTS", "task already has a dispute")
	ErrDisputeNotRaised       = newError(KindStateConflict, "DISPUTE_NOT_RAISED", "dispute is not in raised state")
	ErrDisputeNotExpired      = newError(KindStateConflict, "DISPUTE_NOT_EXPIRED", "dispute timeout has not elapsed")
	ErrDisputeTimeoutDisabled = newError(KindStateConflict, "DISPUTE_TIMEOUT_DISABLED", "dispute expiry is disabled")
	ErrTaskNotFunded          = newError(KindStateConflict, "TASK_NOT_FUNDED", "task escrow holds no funds")
	ErrInvalidReward          = newError(KindValidation, "INVALID_REWARD", "reward must be greater than zero")
	ErrInvalidAmount          = newError(KindValidation, "INVALID_AMOUNT", "amount must be greater than zero")
	ErrTooManyDependencies    = newError(KindValidation, "TOO_MANY_DEPENDENCIES", "dependency count exceeds the graph cap")
	ErrSelfDependency         = newError(KindValidation, "SELF_DEPENDENCY", "task cannot depend on itself")
	ErrDuplicateDependency    = newError(KindValidation, "DUPLICATE_DEPENDENCY", "dependency listed more than once")
	ErrDependencyNotFound     = newError(KindValidation, "DEPENDENCY_NOT_FOUND", "dependency task does not exist in this graph")
	ErrInvalidURI             = newError(KindValidation, "INVALID_URI", "uri must be non-empty and within the length limit")
	ErrInvalidReason          = newError(KindValidation, "INVALID_REASON", "reason must be non-empty and within the length limit")
	ErrInvalidSplit           = newError(KindValidation, "INVALID_SPLIT", "split percentages must each be 0-100 and sum to 100")
	ErrInvalidIdentity        = newError(KindValidation, "INVALID_IDENTITY", "identity must be non-empty")
	ErrArithmeticOverflow     = newError(KindValidation, "ARITHMETIC_OVERFLOW", "arithmetic overflow")
	ErrEmptyEscrow            = newError(KindResource, "EMPTY_ESCROW", "escrow holds no funds to release")
	ErrInsufficientFunds      = newError(KindResource, "INSUFFICIENT_FUNDS", "account balance is too low")
	ErrGraphNotFound          = newError(KindNotFound, "GRAPH_NOT_FOUND", "graph not found")
	ErrTaskNotFound           = newError(KindNotFound, "TASK_NOT_FOUND", "task not found")
	ErrReceiptNotFound        = newError(KindNotFound, "RECEIPT_NOT_FOUND", "receipt not found for agent")
	ErrDisputeNotFound        = newError(KindNotFound, "DISPUTE_NOT_FOUND", "dispute not found")
)

// wrap attaches detail to a sentinel without losing errors.Is matching.
func wrap(sentinel *Error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// AsError extracts the ledger rejection from err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Retryable reports whether the same request may succeed after external
// state changes (a deposit, a funding). Only resource errors qualify.
func Retryable(err error) bool {
	e, ok := AsError(err)
	return ok && e.Kind == KindResource
}

// fromRepo maps storage-level sentinels onto ledger rejections.
func fromRepo(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repo.ErrOverflow):
		return fmt.Errorf("%w: %v", ErrArithmeticOverflow, err)
	case errors.Is(err, repo.ErrInsufficientBalance):
		return fmt.Errorf("%w: %v", ErrInsufficientFunds, err)
	}
	return err
}
