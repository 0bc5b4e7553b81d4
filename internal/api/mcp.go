// Package api exposes the local profile store to MCP clients.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/sdgteacher/sdgchat/internal/memory"
	"github.com/sdgteacher/sdgchat/internal/profile"
	"github.com/sdgteacher/sdgchat/internal/storage"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Profiles  *profile.Manager
	Extractor *memory.Extractor // optional; defaults to the built-in rules
	Clock     Clock             // optional
}

func (d MCPDeps) withDefaults() MCPDeps {
	if d.Extractor == nil {
		d.Extractor = memory.New(nil)
	}
	if d.Clock == nil {
		d.Clock = realClock{}
	}
	return d
}

// NewMCPServer creates an MCP server with all sdgchat tools and resources registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	deps = deps.withDefaults()

	s := server.NewMCPServer(
		"sdgchat",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("sdgchat local profiles and the environment memory gathered from camera and microphone sessions."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_profiles",
			mcp.WithDescription("List local user profiles with their session counts and memory sizes."),
		),
		mcpListProfiles(deps),
	)

	s.AddTool(
		mcp.NewTool("environment_memory",
			mcp.WithDescription("Return a profile's environment memory formatted as backend context lines, tours first."),
			mcp.WithString("username", mcp.Description("Profile name; omit for the anonymous fallback memory")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of lines (default all)")),
		),
		mcpEnvironmentMemory(deps),
	)

	s.AddTool(
		mcp.NewTool("detect_tour",
			mcp.WithDescription("Classify an exchange as a room tour and list the items its response mentions."),
			mcp.WithString("user_message", mcp.Description("What the user asked")),
			mcp.WithString("response", mcp.Description("The assistant's reply"), mcp.Required()),
		),
		mcpDetectTour(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"user://profiles",
			"User Profiles",
			mcp.WithResourceDescription("All local profiles as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceProfiles(deps),
	)

	return s
}

type profileSummary struct {
	Username      string    `json:"username"`
	SessionsCount int       `json:"sessionsCount"`
	LastAccess    time.Time `json:"lastAccess"`
	Observations  int       `json:"observations"`
	Tours         int       `json:"tours"`
}

func mcpListProfiles(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		profiles, err := deps.Profiles.ListProfiles()
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list profiles: %v", err)), nil
		}

		out := make([]profileSummary, len(profiles))
		for i, p := range profiles {
			out[i] = profileSummary{
				Username:      p.Username,
				SessionsCount: p.SessionsCount,
				LastAccess:    p.LastAccess,
				Observations:  len(p.EnvironmentMemory),
			}
			for _, o := range p.EnvironmentMemory {
				if o.IsTour {
					out[i].Tours++
				}
			}
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal profiles: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpEnvironmentMemory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		username := req.GetString("username", "")
		limit := req.GetInt("limit", 0)

		var obs []profile.Observation
		if username == "" {
			fb, err := deps.Profiles.FallbackMemory()
			if err != nil {
				return mcpError(fmt.Sprintf("failed to read fallback memory: %v", err)), nil
			}
			obs = fb
		} else {
			p, err := deps.Profiles.GetProfile(username)
			if errors.Is(err, storage.ErrNotFound) {
				return mcpError(fmt.Sprintf("no profile named %q", username)), nil
			}
			if err != nil {
				return mcpError(fmt.Sprintf("failed to read profile: %v", err)), nil
			}
			obs = p.EnvironmentMemory
		}

		lines := memory.FormatForBackend(obs, deps.Clock.Now())
		if limit > 0 && len(lines) > limit {
			lines = lines[:limit]
		}

		b, err := json.Marshal(lines)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal memory: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpDetectTour(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		response, err := req.RequireString("response")
		if err != nil {
			return mcpError("response is required"), nil
		}
		userMessage := req.GetString("user_message", "")

		result := struct {
			IsTour  bool     `json:"isTour"`
			Summary string   `json:"summary"`
			Items   []string `json:"items"`
		}{
			IsTour:  deps.Extractor.DetectTour(userMessage, response),
			Summary: deps.Extractor.Summarize(response),
			Items:   deps.Extractor.ExtractItems(response),
		}

		b, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceProfiles(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		profiles, err := deps.Profiles.ListProfiles()
		if err != nil {
			return nil, fmt.Errorf("failed to list profiles: %w", err)
		}

		b, err := json.Marshal(profiles)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profiles: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
