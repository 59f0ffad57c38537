package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewTriageMCPServer creates an MCP server with the triage tools registered:
// triage_case, get_run, and list_patients.
func NewTriageMCPServer(svc *TriageService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "auratriage",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "triage_case",
		Description: "Run a patient case through the specialist triage pipeline (diagnostician, pharmacologist, financial auditor, ABHA compliance). Returns each specialist's output and, if requested, the final summary.",
	}, svc.TriageCase)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_run",
		Description: "Get the recorded state of a triage run: status, completed stages, and summary.",
	}, svc.GetRun)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_patients",
		Description: "List patients in the case store with their ABHA number and insurance tier.",
	}, svc.ListPatients)

	return server
}

// RunStdio runs the MCP server on stdio transport, blocking until stdin is
// closed or the context is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// Handler exposes the MCP server over streamable HTTP.
func Handler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)
}
