// CLAUDE:SUMMARY MCP tool surface: the five exposed operations registered on a model-context-protocol server.
package kb

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/savoir/catalog"
	"github.com/hazyhaar/savoir/kb/internal/queue"
	"github.com/hazyhaar/savoir/kb/internal/refresh"
	"github.com/hazyhaar/savoir/kb/internal/retrieve"
)

// RegisterMCP registers the service's operations as MCP tools so external
// assistants can drive ingestion and search.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	type addIn struct {
		Input string `json:"input" jsonschema:"URLs or a research prompt"`
	}
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "kb_add_sources",
		Description: "Discover and register sources from URLs or a research prompt",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in addIn) (*mcp.CallToolResult, AddResult, error) {
		res, err := s.AddSources(ctx, in.Input)
		return nil, res, err
	})

	type processIn struct {
		MaxBatches int `json:"max_batches,omitempty" jsonschema:"batches to process; 0 drains the queue"`
	}
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "kb_process_queue",
		Description: "Fetch, chunk, and index pending sources",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in processIn) (*mcp.CallToolResult, queue.Stats, error) {
		stats, err := s.ProcessQueue(ctx, in.MaxBatches)
		return nil, stats, err
	})

	type searchIn struct {
		Query     string            `json:"query"`
		K         int               `json:"k,omitempty" jsonschema:"result count; default 5"`
		Filters   map[string]string `json:"filters,omitempty" jsonschema:"metadata equality filters, e.g. kind=repo"`
		Hybrid    bool              `json:"hybrid,omitempty"`
		Reranking bool              `json:"reranking,omitempty"`
		Expansion bool              `json:"expansion,omitempty"`
	}
	type searchOut struct {
		Results  []retrieve.Result `json:"results"`
		Warnings []string          `json:"warnings,omitempty"`
	}
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "kb_search",
		Description: "Semantic and hybrid search over the knowledge base",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in searchIn) (*mcp.CallToolResult, searchOut, error) {
		results, warnings, err := s.Search(ctx, in.Query, in.K, in.Filters, SearchFlags{
			Hybrid:    in.Hybrid,
			Reranking: in.Reranking,
			Expansion: in.Expansion,
		})
		if err != nil {
			return nil, searchOut{}, err
		}
		return nil, searchOut{Results: results, Warnings: warnings}, nil
	})

	type emptyIn struct{}
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "kb_status",
		Description: "Catalog counts, chunk count, and API quota snapshot",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in emptyIn) (*mcp.CallToolResult, *Status, error) {
		status, err := s.GetStatus(ctx)
		return nil, status, err
	})

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "kb_refresh_once",
		Description: "Run one refresh pass over entries due for re-check",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in emptyIn) (*mcp.CallToolResult, refresh.Stats, error) {
		stats, err := s.RefreshOnce(ctx)
		return nil, stats, err
	})

	type clearIn struct {
		Statuses []string `json:"statuses,omitempty" jsonschema:"pending and/or failed; default both"`
	}
	type clearOut struct {
		Deleted int `json:"deleted"`
	}
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "kb_clear_queue",
		Description: "Delete pending and/or failed catalog entries",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in clearIn) (*mcp.CallToolResult, clearOut, error) {
		for _, st := range in.Statuses {
			if st != catalog.StatusPending && st != catalog.StatusFailed {
				return nil, clearOut{}, fmt.Errorf("%w: cannot clear status %q", ErrInvalidInput, st)
			}
		}
		n, err := s.ClearQueue(ctx, in.Statuses...)
		return nil, clearOut{Deleted: n}, err
	})
}
