// ABOUTME: Legal docs pack lists and uploads document generation templates.
// ABOUTME: Requires the "legaldocs" capability.

package builtins

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/2389/audit-gateway/internal/legaldocs"
	"github.com/2389/audit-gateway/internal/packs"
)

// TemplateService is the legal docs service. *legaldocs.Client satisfies it.
type TemplateService interface {
	Templates(ctx context.Context) ([]string, error)
	UploadTemplate(ctx context.Context, base64Content, filename string) *legaldocs.UploadResult
}

// LegalDocsPack creates the legal docs pack.
func LegalDocsPack(svc TemplateService) *packs.BuiltinPack {
	h := &legalDocsHandlers{svc: svc}
	return &packs.BuiltinPack{
		ID: "builtin:legaldocs",
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:                 "get_legal_docs_templates",
					Description:          "Get the names of the available legal document templates.",
					InputSchema:          json.RawMessage(`{"type":"object","properties":{}}`),
					RequiredCapabilities: []string{"legaldocs"},
				},
				Handler: h.GetTemplates,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "upload_legal_doc_template",
					Description:          "Upload a PDF legal document template given as base64 content.",
					InputSchema:          json.RawMessage(`{"type":"object","properties":{"base64_content":{"type":"string"},"filename":{"type":"string"}},"required":["base64_content","filename"]}`),
					RequiredCapabilities: []string{"legaldocs"},
				},
				Handler: h.UploadTemplate,
			},
		},
	}
}

type legalDocsHandlers struct {
	svc TemplateService
}

func (h *legalDocsHandlers) GetTemplates(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
	templates, err := h.svc.Templates(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"templates": templates})
}

type uploadTemplateInput struct {
	Base64Content string `json:"base64_content"`
	Filename      string `json:"filename"`
}

// UploadTemplate relays the service outcome as-is; a rejected upload is a
// successful call with success=false.
func (h *legalDocsHandlers) UploadTemplate(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
	var in uploadTemplateInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	if in.Base64Content == "" || in.Filename == "" {
		return nil, fmt.Errorf("%w: base64_content and filename are required", ErrInvalidInput)
	}
	return json.Marshal(h.svc.UploadTemplate(ctx, in.Base64Content, in.Filename))
}
