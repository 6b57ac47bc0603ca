package contactimport

import "github.com/ignite/contact-import/internal/domain"

// Sentinel errors for the import service layer. Detailed instances share
// the sentinel's kind, so errors.Is works on either.
var (
	ErrEmptyOrUnreadableInput = domain.NewError(domain.KindEmptyOrUnreadableInput, "input is empty or unreadable")
	ErrInvalidMapping         = domain.NewError(domain.KindInvalidMapping, "invalid column mapping")
	ErrUnknownBatch           = domain.NewError(domain.KindUnknownBatch, "batch not found")
	ErrBatchNotMapped         = domain.NewError(domain.KindBatchNotMapped, "batch has no confirmed mapping")
	ErrBatchNotValidated      = domain.NewError(domain.KindBatchNotValidated, "batch must be validated before commit")
	ErrBatchAlreadyCommitted  = domain.NewError(domain.KindBatchAlreadyCommitted, "batch has already been committed")
	ErrBatchFailed            = domain.NewError(domain.KindBatchFailed, "batch is in failed state")
	ErrBatchBusy              = domain.NewError(domain.KindBatchBusy, "batch is busy with another request")
	ErrValidationBlocked      = domain.NewError(domain.KindValidationBlocked, "validation reported blocking errors in strict mode")
)
