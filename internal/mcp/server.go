package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/hpungsan/nbaudit/internal/ops"
)

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

var auditToolDef = mcp.NewTool("notebook_audit",
	mcp.WithDescription("Audit a Jupyter notebook for accessibility problems: missing alt text, "+
		"low text contrast in images, high image transparency, and heading outline errors. "+
		"Returns findings grouped by cell in notebook order."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Path to the .ipynb file")),
	mcp.WithString("format",
		mcp.Description("Result format: json (default) or markdown"),
		mcp.Enum("json", "markdown"),
	),
)

var insertHeadingToolDef = mcp.NewTool("notebook_insert_heading",
	mcp.WithDescription("Insert a markdown cell holding a top-level (h1) heading at the start of "+
		"the notebook, save it, and return the audit of the result."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Path to the .ipynb file")),
	mcp.WithString("text", mcp.Required(), mcp.Description("Heading text, without the leading #")),
)

var contrastToolDef = mcp.NewTool("color_contrast",
	mcp.WithDescription("Compute the WCAG 2.0 contrast ratio of two colors and report the "+
		"AA and AAA verdicts for normal text."),
	mcp.WithString("foreground", mcp.Required(), mcp.Description("Text color, #RRGGBB")),
	mcp.WithString("background", mcp.Required(), mcp.Description("Background color, #RRGGBB")),
)

var purgeToolDef = mcp.NewTool("cache_purge",
	mcp.WithDescription("Delete cached image measurements. Findings are never cached; this only "+
		"forces images to be analyzed again."),
	mcp.WithNumber("older_than_days",
		mcp.Description("Only purge measurements older than this many days. Omit to purge everything."),
		mcp.Min(0),
	),
)

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"notebook_audit": {
		def:     auditToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleAudit },
	},
	"notebook_insert_heading": {
		def:     insertHeadingToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleInsertHeading },
	},
	"color_contrast": {
		def:     contrastToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleContrast },
	},
	"cache_purge": {
		def:     purgeToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePurge },
	},
}

// AllToolNames returns a list of all valid tool names.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates a new MCP server with the audit tools registered.
// Tools listed in the engine config's DisabledTools are excluded.
func NewServer(e *ops.Engine, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"nbaudit",
		version,
		server.WithToolCapabilities(true),
	)

	h := NewHandlers(e)

	disabled := make(map[string]bool)
	for _, name := range e.Config().DisabledTools {
		disabled[name] = true
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run starts the MCP server using stdio transport.
func Run(e *ops.Engine, version string) error {
	s := NewServer(e, version)
	return server.ServeStdio(s)
}
