// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes railmiles tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/railmiles/internal/apperr"
	"github.com/starford/railmiles/internal/format"
	"github.com/starford/railmiles/internal/journeys"
	"github.com/starford/railmiles/internal/models"
)

const formatURI = "railmiles://journey-format"

// Server wraps the MCP server with railmiles tools.
type Server struct {
	mcp *server.MCPServer
	svc *journeys.Service
}

// New creates a new MCP server with all railmiles tools registered.
func New(svc *journeys.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"railmiles",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_journeys",
		mcp.WithDescription("List recorded train journeys, newest first, 20 per page."),
		mcp.WithNumber("page", mcp.Description("Zero-based page number (default 0)")),
		mcp.WithString("since", mcp.Description("Window: all (default), month or ytd")),
	), s.listJourneys)

	s.mcp.AddTool(mcp.NewTool("get_journey",
		mcp.WithDescription("Get a single journey by ID, including full station names."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Journey UUID")),
	), s.getJourney)

	s.mcp.AddTool(mcp.NewTool("journey_stats",
		mcp.WithDescription("Journey count and miles travelled for the last month, year to date and all time."),
	), s.journeyStats)

	s.mcp.AddTool(mcp.NewTool("create_return_journey",
		mcp.WithDescription("Record the return of a journey: same date and distance, stations reversed. "+
			"Fails if the journey already has a return."),
		mcp.WithString("id", mcp.Required(), mcp.Description("UUID of the outbound journey")),
	), s.createReturnJourney)

	s.mcp.AddTool(mcp.NewTool("lookup_station",
		mcp.WithDescription("Look up a station's name and location by its three letter CRS code."),
		mcp.WithString("code", mcp.Required(), mcp.Description("CRS code, e.g. EUS")),
	), s.lookupStation)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Journey Format",
			mcp.WithResourceDescription("How journeys and statistics returned by the tools are structured."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readJourneyFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(out)), nil
}

func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

func requireID(req mcp.CallToolRequest) (uuid.UUID, *mcp.CallToolResult) {
	raw, err := req.RequireString("id")
	if err != nil {
		return uuid.Nil, mcp.NewToolResultError(err.Error())
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, mcp.NewToolResultError(fmt.Sprintf("invalid journey id: %s", raw))
	}
	return id, nil
}

func (s *Server) listJourneys(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	since, err := models.ParseSince(req.GetString("since", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	page, err := s.svc.List(ctx, req.GetInt("page", 0), since)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(page)
}

func (s *Server) getJourney(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := requireID(req)
	if bad != nil {
		return bad, nil
	}
	d, err := s.svc.Get(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(d.Data)
}

func (s *Server) journeyStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.Stats(ctx)
	if err != nil {
		return toolError(err), nil
	}
	res, err := jsonResult(st)
	if err != nil {
		return nil, err
	}
	res.Content = append(res.Content, mcp.NewTextContent(statsSummary(st)))
	return res, nil
}

func statsSummary(st journeys.Stats) string {
	var sb strings.Builder
	for _, w := range []struct {
		label string
		st    *models.JourneyStats
	}{
		{"Last month", st.LastMonth},
		{"Year to date", st.YTD},
		{"All time", st.AllTime},
	} {
		if w.st == nil {
			continue
		}
		noun := "journeys"
		if w.st.Count == 1 {
			noun = "journey"
		}
		fmt.Fprintf(&sb, "%s: %d %s, %s miles\n", w.label, w.st.Count, noun, format.Miles(float64(w.st.Miles)))
	}
	return sb.String()
}

func (s *Server) createReturnJourney(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, bad := requireID(req)
	if bad != nil {
		return bad, nil
	}
	retID, err := s.svc.CreateReturn(ctx, id)
	if err != nil {
		return toolError(err), nil
	}
	d, err := s.svc.Get(ctx, retID)
	if err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("created return journey: %s", retID)), nil
	}
	ret := d.Data
	return mcp.NewToolResultText(fmt.Sprintf("created return journey: %s\n%s on %s, %s miles",
		retID, strings.Join(ret.Stops(), " > "), format.Date(ret.Date), format.Miles(float64(ret.Distance)))), nil
}

func (s *Server) lookupStation(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := req.RequireString("code")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.svc.Station(code)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("unknown station: %s", code)), nil
	}
	res, err := jsonResult(st)
	if err != nil {
		return nil, err
	}
	res.Content = append(res.Content, mcp.NewTextContent(statsSummary(st)))
	return res, nil
}

func statsSummary(st journeys.Stats) string {
	var sb strings.Builder
	for _, w := range []struct {
		label string
		st    *models.JourneyStats
	}{
		{"Last month", st.LastMonth},
		{"Year to date", st.YTD},
		{"All time", st.AllTime},
	} {
		if w.st == nil {
			continue
		}
		noun := "journeys"
		if w.st.Count == 1 {
			noun = "journey"
		}
		fmt.Fprintf(&sb, "%s: %d %s, %s miles\n", w.label, w.st.Count, noun, format.Miles(float64(w.st.Miles)))
	}
	return sb.String()
}

func (s *Server) readJourneyFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     JourneyFormat,
		},
	}, nil
}
