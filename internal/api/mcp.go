package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/ttyv/internal/storage"
	"github.com/kalambet/ttyv/internal/transcript"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Processor VideoProcessor
	Composer  Answerer
	Store     *storage.Store
}

// NewMCPServer exposes the video tools over MCP so agent clients can process
// and query videos directly.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"ttyv",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("ttyv answers questions about YouTube videos with timestamp citations. Process a video first, then ask questions or search it visually."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("process_video",
			mcp.WithDescription("Ingest a YouTube video so it can be queried. Uses captions when available, otherwise analyzes the video itself."),
			mcp.WithString("youtube_url", mcp.Description("YouTube video URL"), mcp.Required()),
		),
		mcpProcessVideo(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_video",
			mcp.WithDescription("Ask a natural-language question about a processed video. Answers cite timestamps like [2:30]."),
			mcp.WithString("video_id", mcp.Description("Video id returned by process_video"), mcp.Required()),
			mcp.WithString("question", mcp.Description("The question to answer"), mcp.Required()),
		),
		mcpAskVideo(deps),
	)

	s.AddTool(
		mcp.NewTool("visual_search",
			mcp.WithDescription("Find moments in a processed video matching a visual description, e.g. \"a bar chart\" or \"person at a whiteboard\"."),
			mcp.WithString("video_id", mcp.Description("Video id returned by process_video"), mcp.Required()),
			mcp.WithString("query", mcp.Description("Visual description to search for"), mcp.Required()),
		),
		mcpVisualSearch(deps),
	)

	s.AddTool(
		mcp.NewTool("list_videos",
			mcp.WithDescription("List processed videos with their sections."),
		),
		mcpListVideos(deps),
	)

	return s
}

func mcpProcessVideo(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := req.RequireString("youtube_url")
		if err != nil {
			return mcpError("youtube_url is required"), nil
		}

		res, err := deps.Processor.Process(ctx, url)
		if err != nil {
			return mcpError(fmt.Sprintf("processing failed: %v", err)), nil
		}

		out, err := json.Marshal(map[string]any{
			"video_id":          res.VideoID,
			"sections":          res.Sections,
			"transcript_length": res.TranscriptLength,
			"chunks_created":    res.ChunksCreated,
			"processing_mode":   res.ProcessingMode,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to encode result: %v", err)), nil
		}
		return mcpText(string(out)), nil
	}
}

func mcpAskVideo(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		videoID, err := req.RequireString("video_id")
		if err != nil {
			return mcpError("video_id is required"), nil
		}
		question, err := req.RequireString("question")
		if err != nil {
			return mcpError("question is required"), nil
		}

		// Accept a pasted URL where an id is expected.
		if id, err := transcript.ExtractVideoID(videoID); err == nil {
			videoID = id
		}

		answer, err := deps.Composer.Chat(ctx, videoID, question)
		if err != nil {
			return mcpError(fmt.Sprintf("chat failed: %v", err)), nil
		}

		out, err := json.Marshal(answer)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to encode answer: %v", err)), nil
		}
		return mcpText(string(out)), nil
	}
}

func mcpVisualSearch(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		videoID, err := req.RequireString("video_id")
		if err != nil {
			return mcpError("video_id is required"), nil
		}
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		if id, err := transcript.ExtractVideoID(videoID); err == nil {
			videoID = id
		}

		result, err := deps.Composer.VisualSearch(ctx, videoID, query)
		if err != nil {
			return mcpError(fmt.Sprintf("visual search failed: %v", err)), nil
		}

		out, err := json.Marshal(result)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to encode matches: %v", err)), nil
		}
		return mcpText(string(out)), nil
	}
}

func mcpListVideos(deps MCPDeps) server.ToolHandlerFunc {
	return func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		videos, err := deps.Store.ListVideos(50)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list videos: %v", err)), nil
		}
		if videos == nil {
			videos = []storage.Video{}
		}
		out, err := json.Marshal(videos)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to encode videos: %v", err)), nil
		}
		return mcpText(string(out)), nil
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
