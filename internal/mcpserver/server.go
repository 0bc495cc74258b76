// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes folio note tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/notes"
)

const layoutURI = "folio://layout"

// Engine is the subset of the note engine the tools call.
type Engine interface {
	CreateNote(ctx context.Context, path string) (*notes.Note, error)
	GetNote(ctx context.Context, path string) (*notes.Note, error)
	SaveNote(ctx context.Context, path string, content []byte) (*index.NoteMetadata, error)
	RenameNote(ctx context.Context, oldPath, newPath string) error
	GetChildren(ctx context.Context, path string) ([]index.NoteMetadata, error)
	GetRootNotes(ctx context.Context) ([]index.NoteMetadata, error)
	Search(ctx context.Context, query string) ([]index.NoteMetadata, error)
}

// Server wraps the MCP server with folio tools.
type Server struct {
	mcp *server.MCPServer
	eng Engine
}

// New creates a new MCP server with all folio tools registered.
func New(eng Engine) *Server {
	s := &Server{eng: eng}

	s.mcp = server.NewMCPServer(
		"folio",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Case-insensitive substring search through note content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Note path (e.g. projects/rust-app); empty for the root note")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new note at the specified path, optionally with initial Markdown content. "+
			"Read the layout first via the get_store_layout tool or the "+layoutURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the new note")),
		mcp.WithString("content", mcp.Description("Optional initial Markdown content")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("save_note",
		mcp.WithDescription("Replace the content of an existing note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Note path")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New Markdown content")),
	), s.saveNote)

	s.mcp.AddTool(mcp.NewTool("list_children",
		mcp.WithDescription("List the notes directly below a note."),
		mcp.WithString("path", mcp.Description("Parent note path (empty for top level)")),
	), s.listChildren)

	s.mcp.AddTool(mcp.NewTool("root_notes",
		mcp.WithDescription("List the top-most notes that have no parent note."),
	), s.rootNotes)

	s.mcp.AddTool(mcp.NewTool("rename_note",
		mcp.WithDescription("Move a note and all its descendants to a new path."),
		mcp.WithString("old_path", mcp.Required(), mcp.Description("Current note path")),
		mcp.WithString("new_path", mcp.Required(), mcp.Description("Target note path")),
	), s.renameNote)

	s.mcp.AddTool(mcp.NewTool("get_store_layout",
		mcp.WithDescription("Returns how notes are addressed and stored. "+
			"Call this before creating or moving notes."),
	), s.getStoreLayout)

	s.mcp.AddResource(
		mcp.NewResource(layoutURI, "Note Layout",
			mcp.WithResourceDescription("How folio notes are addressed and laid out on disk."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readLayoutResource,
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

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.eng.Search(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no matches"), nil
	}
	return jsonResult(results), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	note, err := s.eng.GetNote(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read %q: %v", path, err)), nil
	}
	return mcp.NewToolResultText(note.Content), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.eng.CreateNote(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if content := req.GetString("content", ""); content != "" {
		if _, err := s.eng.SaveNote(ctx, note.Path, []byte(content)); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s (id %d)", note.Path, note.ID)), nil
}

func (s *Server) saveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	meta, err := s.eng.SaveNote(ctx, path, []byte(content))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved: %s", meta.Path)), nil
}

func (s *Server) listChildren(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kids, err := s.eng.GetChildren(ctx, req.GetString("path", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(joinPaths(kids)), nil
}

func (s *Server) rootNotes(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	roots, err := s.eng.GetRootNotes(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(joinPaths(roots)), nil
}

func (s *Server) renameNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	oldPath, err := req.RequireString("old_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	newPath, err := req.RequireString("new_path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.eng.RenameNote(ctx, oldPath, newPath); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved: %s -> %s", oldPath, newPath)), nil
}

func (s *Server) getStoreLayout(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(StoreLayout), nil
}

func (s *Server) readLayoutResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      layoutURI,
			MIMEType: "text/markdown",
			Text:     StoreLayout,
		},
	}, nil
}

func joinPaths(ms []index.NoteMetadata) string {
	if len(ms) == 0 {
		return "no notes"
	}
	paths := make([]string, len(ms))
	for i, m := range ms {
		paths[i] = m.Path
	}
	return strings.Join(paths, "\n")
}
