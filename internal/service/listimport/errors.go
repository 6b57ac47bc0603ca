package listimport

import "github.com/ignite/contact-import/internal/domain"

// Sentinel errors for the list import service layer.
var (
	ErrUnknownJob        = domain.NewError(domain.KindUnknownJob, "import job not found")
	ErrJobAlreadyRunning = domain.NewError(domain.KindJobAlreadyRunning, "an import is already running for this list")
)
