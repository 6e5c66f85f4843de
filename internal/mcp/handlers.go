package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/nbaudit/internal/errors"
	"github.com/hpungsan/nbaudit/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	engine *ops.Engine
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(e *ops.Engine) *Handlers {
	return &Handlers{engine: e}
}

// AuditRequest represents the arguments for notebook_audit.
type AuditRequest struct {
	Path   string `json:"path"`
	Format string `json:"format,omitempty"`
}

// InsertHeadingRequest represents the arguments for notebook_insert_heading.
type InsertHeadingRequest struct {
	Path string `json:"path"`
	Text string `json:"text"`
}

// ContrastRequest represents the arguments for color_contrast.
type ContrastRequest struct {
	Foreground string `json:"foreground"`
	Background string `json:"background"`
}

// PurgeRequest represents the arguments for cache_purge.
type PurgeRequest struct {
	OlderThanDays *int `json:"older_than_days,omitempty"`
}

// HandleAudit handles the notebook_audit tool call.
func (h *Handlers) HandleAudit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AuditRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}
	switch input.Format {
	case "", "json", "markdown":
	default:
		return errorResult(errors.NewInvalidRequest("format must be json or markdown")), nil
	}

	r, err := ops.Check(ctx, h.engine, ops.CheckInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}

	if input.Format == "markdown" {
		return mcp.NewToolResultText(r.Markdown()), nil
	}
	return successResult(r)
}

// HandleInsertHeading handles the notebook_insert_heading tool call.
func (h *Handlers) HandleInsertHeading(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[InsertHeadingRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.InsertHeading(ctx, h.engine, ops.InsertHeadingInput{
		Path: input.Path,
		Text: input.Text,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleContrast handles the color_contrast tool call.
func (h *Handlers) HandleContrast(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ContrastRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Contrast(ops.ContrastInput{
		Foreground: input.Foreground,
		Background: input.Background,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePurge handles the cache_purge tool call.
func (h *Handlers) HandlePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurgeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	var days int
	if input.OlderThanDays != nil {
		days = *input.OlderThanDays
	}
	result, err := ops.Purge(ctx, h.engine.Cache(), ops.PurgeInput{OlderThanDays: days})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are not exposed.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var aErr *errors.AuditError
	if stderrors.As(err, &aErr) {
		errorObj := map[string]any{
			"code":    aErr.Code,
			"message": aErr.Message,
			"status":  aErr.Status,
		}
		if aErr.Code != errors.ErrInternal && aErr.Details != nil {
			errorObj["details"] = aErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    "INTERNAL",
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
