// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes stickies tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/stickies/internal/itemservice"
	"github.com/starford/stickies/internal/markup"
	"github.com/starford/stickies/internal/tagpath"
	"github.com/starford/stickies/internal/tagtree"
	"github.com/starford/stickies/internal/uploads"
)

// ContractURI is the resource URI of the markup contract.
const ContractURI = "stickies://markup-format"

// Server wraps the MCP server with stickies tools. All calls act on behalf
// of one owner.
type Server struct {
	mcp     *server.MCPServer
	svc     *itemservice.Service
	uploads *uploads.Store
	owner   string
}

// New creates a new MCP server with all stickies tools registered.
// upl may be nil, in which case upload_image is not offered.
func New(svc *itemservice.Service, upl *uploads.Store, owner string) *Server {
	s := &Server{svc: svc, uploads: upl, owner: owner}

	s.mcp = server.NewMCPServer(
		"Stickies",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List the tag tree as indented paths with item counts."),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("suggest_tags",
		mcp.WithDescription("Find existing tags whose path contains the query (case-insensitive)."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Partial tag, with or without leading #")),
	), s.suggestTags)

	s.mcp.AddTool(mcp.NewTool("rename_tag",
		mcp.WithDescription("Rename a tag and all its descendants across every item. "+
			"Renaming onto an existing tag merges the two."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Existing tag path, e.g. proj")),
		mcp.WithString("to", mcp.Required(), mcp.Description("New tag path, e.g. work/proj")),
	), s.renameTag)

	s.mcp.AddTool(mcp.NewTool("move_tag",
		mcp.WithDescription("Move a tag subtree under a new parent, or to the root when parent is empty."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Tag path to move")),
		mcp.WithString("parent", mcp.Description("New parent path (empty for root)")),
	), s.moveTag)

	s.mcp.AddTool(mcp.NewTool("delete_tag",
		mcp.WithDescription("Remove a tag and all its descendants from every item. Items are kept."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Tag path to delete")),
	), s.deleteTag)

	s.mcp.AddTool(mcp.NewTool("read_item",
		mcp.WithDescription("Read an item: title, tags and markup body."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Item id")),
	), s.readItem)

	s.mcp.AddTool(mcp.NewTool("create_item",
		mcp.WithDescription("Create an item. The body MUST follow the markup contract; read it first via "+
			"get_markup_contract or the "+ContractURI+" resource."),
		mcp.WithString("title", mcp.Description("Item title")),
		mcp.WithString("body", mcp.Required(), mcp.Description("Markup body; #tag references are added to the tag set")),
		mcp.WithString("kind", mcp.Description("note or task"), mcp.Enum("note", "task")),
	), s.createItem)

	s.mcp.AddTool(mcp.NewTool("search_items",
		mcp.WithDescription("Full-text search through item titles, bodies and tags."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchItems)

	s.mcp.AddTool(mcp.NewTool("get_markup_contract",
		mcp.WithDescription("Returns the item markup contract. "+
			"Call this before creating items to ensure correct structure."),
	), s.getMarkupContract)

	if upl != nil {
		s.mcp.AddTool(mcp.NewTool("upload_image",
			mcp.WithDescription("Upload an image from a data URI or an http(s) URL. "+
				"Returns the URL and a markup snippet to paste into a body."),
			mcp.WithString("url", mcp.Required(), mcp.Description("data:image/...;base64,... or https://...")),
			mcp.WithString("alt", mcp.Description("Alt text")),
		), s.uploadImage)
	}

	// Resource: markup contract.
	s.mcp.AddResource(
		mcp.NewResource(ContractURI, "Markup Contract",
			mcp.WithResourceDescription("Item markup format, including tag reference syntax."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readContractResource,
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

func (s *Server) listTags(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	roots, err := s.svc.TagTree(ctx, s.owner)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(roots) == 0 {
		return mcp.NewToolResultText("no tags"), nil
	}
	var b strings.Builder
	tagtree.Walk(roots, func(n *tagtree.Node, depth int) bool {
		fmt.Fprintf(&b, "%s%s (%d)\n", strings.Repeat("  ", depth), n.FullPath, n.Count)
		return true
	})
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) suggestTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	paths, err := s.svc.Suggest(ctx, s.owner, query)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(joinPaths(paths)), nil
}

func (s *Server) renameTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := req.RequireString("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := req.RequireString("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.RenameTag(ctx, s.owner, from, to)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("renamed %s -> %s (%d items)", from, to, res.Affected)), nil
}

func (s *Server) moveTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	parent := req.GetString("parent", "")
	res, err := s.svc.MoveTag(ctx, s.owner, path, parent)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if parent == "" {
		parent = "(root)"
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved %s under %s (%d items)", path, parent, res.Affected)), nil
}

func (s *Server) deleteTag(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.DeleteTag(ctx, s.owner, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted %s (%d items)", path, res.Affected)), nil
}

func (s *Server) readItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	it, err := s.svc.GetItem(ctx, s.owner, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "title: %s\nkind: %s\ntags: %s\n\n%s", it.Title, it.Kind, strings.Join(it.Tags.Strings(), ", "), it.Body)
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) createItem(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	body, err := req.RequireString("body")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	it, err := s.svc.CreateItem(ctx, s.owner, itemservice.ItemInput{
		Title: req.GetString("title", ""),
		Kind:  req.GetString("kind", ""),
		Body:  body,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", it.ID)), nil
}

func (s *Server) searchItems(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, s.owner, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(results, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) uploadImage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	src, err := s.uploads.Resolve(ctx, raw)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	url, err := s.uploads.UploadImage(ctx, src.Data, src.ContentType)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snippet := markup.EncodeInline([]markup.Span{{Kind: markup.SpanImage, Text: req.GetString("alt", ""), URL: url}})
	out, _ := json.MarshalIndent(map[string]any{
		"url":    url,
		"size":   len(src.Data),
		"markup": snippet,
	}, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getMarkupContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(MarkupContract), nil
}

func (s *Server) readContractResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ContractURI,
			MIMEType: "text/markdown",
			Text:     MarkupContract,
		},
	}, nil
}

func joinPaths(paths []tagpath.Path) string {
	if len(paths) == 0 {
		return "no matching tags"
	}
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = p.String()
	}
	return strings.Join(out, "\n")
}
