// Package mcptools exposes the knowledge graph over the Model Context
// Protocol so agentic clients can build, inspect, and query graphs.
package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewGraphMCPServer creates an MCP server with all graph tools registered.
func NewGraphMCPServer(svc *GraphService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "csngraph",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "load_graph",
		Description: "Load the knowledge graph for a kind and scope. Serves from the cache when a built graph exists; otherwise loads the CSN schema, builds the graph, and caches it.",
	}, svc.LoadGraph)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "rebuild_graph",
		Description: "Discard the cached graph for a kind and scope (including dependent entries) and build it fresh from the current schema and data.",
	}, svc.RebuildGraph)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "graph_status",
		Description: "Report cache state for a kind and scope: whether a built graph exists, when it was built, its inputs digest, and node/edge counts. Never triggers a build.",
	}, svc.GraphStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_cache",
		Description: "Remove every cached graph. Subsequent loads rebuild from the sources.",
	}, svc.ClearCache)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_neighbors",
		Description: "Return the one-hop neighbors of a node, optionally filtered by edge role and direction. Results are deterministically ordered.",
	}, svc.GetNeighbors)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "shortest_path",
		Description: "Find the shortest undirected path between two nodes, bounded by a maximum hop count. Ties are broken toward the lexicographically smallest node sequence.",
	}, svc.ShortestPath)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "traverse",
		Description: "Breadth-first traversal from a start node up to a given depth, following out, in, or both edge directions.",
	}, svc.Traverse)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "subgraph",
		Description: "Return the induced subgraph over a set of node ids, optionally including the edges between them.",
	}, svc.Subgraph)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "export_graph",
		Description: "Export a graph as a JSON document or a Mermaid diagram.",
	}, svc.ExportGraph)

	return server
}

// RunMCPServer starts an HTTP server exposing the graph MCP tools.
func RunMCPServer(ctx context.Context, svc *GraphService, addr string) error {
	server := NewGraphMCPServer(svc)

	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
