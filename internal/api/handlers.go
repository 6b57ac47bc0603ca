package api

import (
	"github.com/ignite/contact-import/internal/service/contactimport"
	"github.com/ignite/contact-import/internal/service/listimport"
)

const (
	defaultMaxUpload = 50 << 20
	multipartMemory  = 32 << 20
)

// Handlers contains the HTTP handlers for the import API
type Handlers struct {
	imports   *contactimport.Service
	lists     *listimport.Service
	maxUpload int64
}

// NewHandlers creates a new Handlers instance. maxUpload <= 0 uses 50 MiB.
func NewHandlers(imports *contactimport.Service, lists *listimport.Service, maxUpload int64) *Handlers {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &Handlers{imports: imports, lists: lists, maxUpload: maxUpload}
}
