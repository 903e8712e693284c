package slot

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/relwidget/kit"
)

// RegisterMCP registers the slot tools on an MCP server.
func (s *Server) RegisterMCP(srv *mcp.Server) {
	s.registerGetTool(srv)
	s.registerListTool(srv)
	s.registerRefreshTool(srv)
	s.registerRunsTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	sc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sc["required"] = required
	}
	return sc
}

type getReq struct {
	SlotID string `json:"slot_id"`
}

func (s *Server) registerGetTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "relwidget_slot_get",
		Description: "Get the widget currently set on a slot: version, released flag, desaturation and the widget tree.",
		InputSchema: inputSchema(map[string]any{
			"slot_id": map[string]any{"type": "string", "description": "Slot identifier"},
		}, []string{"slot_id"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(getReq)
		if r.SlotID == "" {
			return nil, errors.New("slot_id is required")
		}
		return s.store.Get(ctx, r.SlotID)
	}

	kit.RegisterMCPTool(srv, tool, kit.Logging(s.logger, tool.Name)(endpoint), kit.DecodeArgs[getReq])
}

func (s *Server) registerListTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "relwidget_slot_list",
		Description: "List every widget slot, most recently updated first.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		recs, err := s.store.List(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"slots": recs}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Logging(s.logger, tool.Name)(endpoint), kit.DecodeArgs[struct{}])
}

func (s *Server) registerRefreshTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "relwidget_refresh",
		Description: "Run the widget pipeline now: look up the app version, annotate the icon and present the widget.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		if s.refresh == nil {
			return nil, errors.New("refresh unavailable")
		}
		return s.refresh(ctx)
	}

	kit.RegisterMCPTool(srv, tool, kit.Logging(s.logger, tool.Name)(endpoint), kit.DecodeArgs[struct{}])
}

type runsReq struct {
	Limit int `json:"limit"`
}

func (s *Server) registerRunsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "relwidget_runs",
		Description: "List recent pipeline runs with their version, status and duration, newest first.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Maximum runs to return (default 20)"},
		}, nil),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		if s.runs == nil {
			return nil, errors.New("run history unavailable")
		}
		runs, err := s.runs.Recent(ctx, req.(runsReq).Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"runs": runs}, nil
	}

	kit.RegisterMCPTool(srv, tool, kit.Logging(s.logger, tool.Name)(endpoint), kit.DecodeArgs[runsReq])
}
