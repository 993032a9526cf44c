// Package rpcserver implements the line-delimited JSON-RPC transport: one
// JSON object per line on stdin, one per line on stdout. It is a thin
// adapter over Engine; all search semantics live in internal/engine.
package rpcserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/hbollon/go-edlib"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/standardbeagle/logsearch-mcp/internal/debug"
	"github.com/standardbeagle/logsearch-mcp/internal/engine"
	"github.com/standardbeagle/logsearch-mcp/internal/model"
	"github.com/standardbeagle/logsearch-mcp/internal/reader"
)

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

const protocolVersion = "2024-11-05"
const serverName = "logsearch-mcp"
const serverVersion = "0.1.0"

// Server runs the stdio JSON-RPC loop described in the wire surface spec:
// initialize, notifications/initialized, tools/list (alias list_tools),
// tools/call (alias call_tool), and the domain tools themselves
// (list_log_files, search_logs, and the supplemental inspect_file).
type Server struct {
	engine *engine.Engine
	reader *reader.Reader
}

// New builds a Server bound to eng, using rd for the supplemental
// inspect_file tool.
func New(eng *engine.Engine, rd *reader.Reader) *Server {
	return &Server{engine: eng, reader: rd}
}

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Run drives the stdio loop until in is exhausted or ctx is cancelled.
// Debug output is suppressed while the loop owns stdout, so the JSON-RPC
// stream is never corrupted.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	debug.SetStdioMode(true)
	defer debug.SetStdioMode(false)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	w := bufio.NewWriter(out)
	defer w.Flush()

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req rpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			writeResponse(w, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: codeParseError, Message: err.Error()}})
			continue
		}

		resp := s.dispatch(ctx, req)
		if resp == nil {
			// a notification: no id, no reply.
			continue
		}
		writeResponse(w, *resp)
	}
	return scanner.Err()
}

func writeResponse(w *bufio.Writer, resp rpcResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	w.Write(data)
	w.WriteByte('\n')
	w.Flush()
}

func (s *Server) dispatch(ctx context.Context, req rpcRequest) *rpcResponse {
	switch req.Method {
	case "initialize":
		return &rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
			"serverInfo":      map[string]interface{}{"name": serverName, "version": serverVersion},
		}}
	case "notifications/initialized":
		return nil
	case "tools/list", "list_tools":
		return &rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]interface{}{"tools": toolDescriptors()}}
	case "tools/call", "call_tool":
		return s.handleToolCall(ctx, req)
	default:
		suggestion := suggestMethod(req.Method)
		msg := fmt.Sprintf("method not found: %s", req.Method)
		if suggestion != "" {
			msg = fmt.Sprintf("%s (did you mean %q?)", msg, suggestion)
		}
		return &rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: codeMethodNotFound, Message: msg, Data: suggestion}}
	}
}

var knownMethods = []string{
	"initialize", "notifications/initialized",
	"tools/list", "list_tools", "tools/call", "call_tool",
}

// suggestMethod finds the closest known method name by Levenshtein
// distance, surfaced in the -32601 error's data field.
func suggestMethod(method string) string {
	best := ""
	bestDist := -1
	for _, m := range knownMethods {
		d := edlib.LevenshteinDistance(method, m)
		if bestDist == -1 || d < bestDist {
			bestDist = d
			best = m
		}
	}
	if bestDist >= 0 && bestDist <= len(best)/2+1 {
		return best
	}
	return ""
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleToolCall(ctx context.Context, req rpcRequest) *rpcResponse {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return &rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: codeInvalidParams, Message: err.Error()}}
	}

	// arguments MUST also be accepted in double-encoded (JSON-as-string) form.
	args := params.Arguments
	var doubleEncoded string
	if json.Unmarshal(params.Arguments, &doubleEncoded) == nil {
		args = json.RawMessage(doubleEncoded)
	}

	switch params.Name {
	case "list_log_files":
		return s.handleListLogFiles(req.ID, args)
	case "search_logs":
		return s.handleSearchLogs(ctx, req.ID, args)
	case "inspect_file":
		return s.handleInspectFile(ctx, req.ID, args)
	default:
		return &rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("unknown tool: %s", params.Name)}}
	}
}

type listFilesParams struct {
	RootPath     string   `json:"root_path"`
	IncludeGlobs []string `json:"include_globs"`
	ExcludeGlobs []string `json:"exclude_globs"`
}

func (s *Server) handleListLogFiles(id json.RawMessage, args json.RawMessage) *rpcResponse {
	var p listFilesParams
	if len(args) > 0 {
		if err := json.Unmarshal(args, &p); err != nil {
			return &rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: codeInvalidParams, Message: err.Error()}}
		}
	}

	files, err := s.engine.ListFiles(model.FileScanConfig{
		RootPath:     p.RootPath,
		IncludeGlobs: p.IncludeGlobs,
		ExcludeGlobs: p.ExcludeGlobs,
	})
	if err != nil {
		return toolErrorResult(id, fmt.Sprintf("list failed: %v", err))
	}

	text, _ := json.MarshalIndent(map[string]interface{}{"files": files}, "", "  ")
	return toolTextResult(id, string(text), false)
}

func (s *Server) handleSearchLogs(ctx context.Context, id json.RawMessage, args json.RawMessage) *rpcResponse {
	var reqBody model.SearchRequest
	if err := json.Unmarshal(args, &reqBody); err != nil {
		return &rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: codeInvalidParams, Message: err.Error()}}
	}

	resp, err := s.engine.Search(ctx, reqBody)
	if err != nil {
		return toolErrorResult(id, fmt.Sprintf("search failed: %v", err))
	}

	text, _ := json.MarshalIndent(resp, "", "  ")
	return toolTextResult(id, string(text), false)
}

type inspectFileParams struct {
	Path string `json:"path"`
}

func (s *Server) handleInspectFile(ctx context.Context, id json.RawMessage, args json.RawMessage) *rpcResponse {
	var p inspectFileParams
	if err := json.Unmarshal(args, &p); err != nil {
		return &rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: codeInvalidParams, Message: err.Error()}}
	}
	info, err := s.reader.Inspect(ctx, p.Path)
	if err != nil {
		return toolErrorResult(id, fmt.Sprintf("inspect failed: %v", err))
	}
	text, _ := json.MarshalIndent(info, "", "  ")
	return toolTextResult(id, string(text), false)
}

// toolTextResult and toolErrorResult both surface application-level
// failures uniformly as isError:true tool results rather than the original
// list/search asymmetry (list as a protocol error, search as a tool
// result) — see the internal/rpcserver section of DESIGN.md.
func toolTextResult(id json.RawMessage, text string, isError bool) *rpcResponse {
	return &rpcResponse{JSONRPC: "2.0", ID: id, Result: map[string]interface{}{
		"content": []map[string]interface{}{{"type": "text", "text": text}},
		"isError": isError,
	}}
}

func toolErrorResult(id json.RawMessage, message string) *rpcResponse {
	return toolTextResult(id, message, true)
}

// toolDescriptors builds the tools/list payload using the real MCP SDK's
// Tool/Schema types as the schema descriptor model, independent of the
// hand-rolled transport loop above (which exists to preserve this wire
// format's exact method aliases and error codes).
func toolDescriptors() []*mcp.Tool {
	tools := []*mcp.Tool{
		{
			Name:        "list_log_files",
			Description: "Enumerate candidate log files under a root directory, honoring include/exclude globs.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"root_path":     {Type: "string", Description: "Directory to scan"},
					"include_globs": {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
					"exclude_globs": {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
				},
			},
		},
		{
			Name:        "search_logs",
			Description: "Run a structured Boolean text search with optional time filtering across matching log files.",
			InputSchema: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"scan_config": {Type: "object"},
					"logical_query": {
						Type: "object",
						Properties: map[string]*jsonschema.Schema{
							"must": {Type: "array", Items: searchQueryInputSchema},
							"any":  {Type: "array", Items: searchQueryInputSchema},
							"none": {Type: "array", Items: searchQueryInputSchema},
						},
					},
					"time_filter": {Type: "object"},
					"log_start_pattern": {
						AnyOf: []*jsonschema.Schema{{Type: "string"}, {Type: "null"}},
					},
					"page_size":        {Type: "integer"},
					"page":             {Type: "integer"},
					"max_hits":         {Type: "integer"},
					"hard_timeout_ms":  {Type: "integer"},
					"include_content":  {Type: "boolean"},
				},
				Required: []string{"scan_config", "logical_query"},
			},
		},
		{
			Name:        "inspect_file",
			Description: "Report detected encoding, compression, and example timestamps for a single log file.",
			InputSchema: &jsonschema.Schema{
				Type:       "object",
				Properties: map[string]*jsonschema.Schema{"path": {Type: "string"}},
				Required:   []string{"path"},
			},
		},
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// searchQueryInputSchema documents the anyOf[string, object] shorthand
// accepted for each SearchQuery member of a LogicalQuery clause.
var searchQueryInputSchema = &jsonschema.Schema{
	AnyOf: []*jsonschema.Schema{
		{Type: "string"},
		{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query":          {Type: "string"},
				"regex":          {Type: "boolean"},
				"case_sensitive": {Type: "boolean"},
				"whole_word":     {Type: "boolean"},
			},
		},
	},
}
