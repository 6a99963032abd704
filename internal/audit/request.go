// ABOUTME: Input of an audit run and the synthesized activity summary file.
// ABOUTME: JSON field names are the tool's wire contract and stay in Spanish.

package audit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/2389/audit-gateway/internal/transfer"
)

// ActivityFilename is the name of the synthesized activity summary object.
const ActivityFilename = "activity.txt"

// ActivityDescription is the description recorded for the activity summary.
const ActivityDescription = "Activity File"

// ErrInvalidRequest indicates the request is missing required fields.
var ErrInvalidRequest = errors.New("invalid audit request")

// Request describes one audit process to create.
type Request struct {
	CompanyName        string                    `json:"nombre_compania"`
	UserRole           string                    `json:"cargo_usuario"`
	ProcessTitle       string                    `json:"titulo_proceso"`
	ProcessDescription string                    `json:"descripcion_proceso"`
	ProcessFiles       []transfer.FileDescriptor `json:"urls_planteamiento_proceso_auditoria"`
	Normatives         []transfer.FileDescriptor `json:"urls_normativas_proceso"`
	AuditReports       []transfer.FileDescriptor `json:"urls_informes_auditoria"`
}

// Validate checks required fields and every file descriptor.
func (r Request) Validate() error {
	required := []struct{ name, value string }{
		{"nombre_compania", r.CompanyName},
		{"cargo_usuario", r.UserRole},
		{"titulo_proceso", r.ProcessTitle},
		{"descripcion_proceso", r.ProcessDescription},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidRequest, f.name)
		}
	}

	batches := []struct {
		name  string
		files []transfer.FileDescriptor
	}{
		{"urls_planteamiento_proceso_auditoria", r.ProcessFiles},
		{"urls_normativas_proceso", r.Normatives},
		{"urls_informes_auditoria", r.AuditReports},
	}
	for _, b := range batches {
		for i, f := range b.files {
			if err := f.Validate(); err != nil {
				return fmt.Errorf("%w: %s[%d]: %w", ErrInvalidRequest, b.name, i, err)
			}
		}
	}
	return nil
}

// ActivityText renders the activity summary uploaded alongside the batches.
func (r Request) ActivityText() string {
	return fmt.Sprintf("1. Nombre de la empresa: %s\nNombre del proceso: %s\nDescripcion del proceso: %s",
		r.CompanyName, r.ProcessTitle, r.ProcessDescription)
}
