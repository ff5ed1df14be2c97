// Package mcp serves the raid tools over the Model Context Protocol:
// newline-delimited JSON-RPC 2.0 on stdio.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/rsned/raid-optimizer-server/internal/raid/service"
	"github.com/rsned/raid-optimizer-server/pkg/raid"
)

const (
	// Version is reported in the initialize handshake.
	Version = "0.2.0"

	protocolVersion = "2024-11-05"

	// maxMessageBytes bounds a single request line.
	maxMessageBytes = 4 << 20
)

// JSON-RPC error codes.
const (
	ErrCodeParse          = -32700
	ErrCodeInvalidReq     = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
)

// Server answers MCP requests using a service.Service.
type Server struct {
	service *service.Service
	logger  *slog.Logger
	methods map[string]methodFunc
	tools   map[string]tool
}

type methodFunc func(ctx context.Context, params json.RawMessage) (any, error)

// NewServer creates a Server. A nil logger writes text to stderr.
func NewServer(svc *service.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	s := &Server{service: svc, logger: logger}
	s.methods = map[string]methodFunc{
		"initialize": s.initialize,
		"ping":       func(context.Context, json.RawMessage) (any, error) { return struct{}{}, nil },
		"tools/list": s.listTools,
		"tools/call": s.callTool,
	}
	s.tools = make(map[string]tool)
	for _, t := range s.registry() {
		s.tools[t.def.Name] = t
	}
	return s
}

// Request is a JSON-RPC request or notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id,omitempty"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// invalidParams marks a failure caused by the caller's params rather than by
// the raid domain.
type invalidParams struct{ err error }

func (e *invalidParams) Error() string { return e.err.Error() }
func (e *invalidParams) Unwrap() error { return e.err }

// Run serves stdin/stdout until EOF or cancellation.
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads one message per line from r and writes responses to w.
// A line holding a JSON array is handled as a batch.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.logger.Info("MCP server starting", "version", Version)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageBytes)
	out := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		reply := s.handleMessage(ctx, line)
		if reply == nil {
			continue
		}
		if err := out.Encode(reply); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

// handleMessage returns a *Response, a []*Response for batches, or nil when
// nothing should be written.
func (s *Server) handleMessage(ctx context.Context, line []byte) any {
	if line[0] != '[' {
		if resp := s.handle(ctx, line); resp != nil {
			return resp
		}
		return nil
	}

	var batch []json.RawMessage
	if err := json.Unmarshal(line, &batch); err != nil {
		return errorResponse(nil, ErrCodeParse, "Parse error", err.Error())
	}
	if len(batch) == 0 {
		return errorResponse(nil, ErrCodeInvalidReq, "empty batch", nil)
	}
	var replies []*Response
	for _, msg := range batch {
		if resp := s.handle(ctx, msg); resp != nil {
			replies = append(replies, resp)
		}
	}
	if len(replies) == 0 {
		return nil
	}
	return replies
}

func (s *Server) handle(ctx context.Context, msg []byte) *Response {
	var req Request
	if err := json.Unmarshal(msg, &req); err != nil {
		return errorResponse(nil, ErrCodeParse, "Parse error", err.Error())
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return errorResponse(req.ID, ErrCodeInvalidReq, "invalid JSON-RPC 2.0 request", nil)
	}

	s.logger.Debug("request", "method", req.Method, "id", req.ID)
	if req.ID == nil {
		// Notifications are never answered.
		return nil
	}

	method, ok := s.methods[req.Method]
	if !ok {
		return errorResponse(req.ID, ErrCodeMethodNotFound, "method not found: "+req.Method, nil)
	}
	result, err := method(ctx, req.Params)
	if err != nil {
		code := ErrCodeInternal
		var ip *invalidParams
		if errors.As(err, &ip) {
			code = ErrCodeInvalidParams
		}
		return errorResponse(req.ID, code, err.Error(), nil)
	}
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func errorResponse(id any, code int, msg string, data any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: &Error{Code: code, Message: msg, Data: data}}
}

// InitializeResult answers initialize.
type InitializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	ServerInfo      ServerInfo   `json:"serverInfo"`
	Capabilities    Capabilities `json:"capabilities"`
}

type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Capabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

func (s *Server) initialize(context.Context, json.RawMessage) (any, error) {
	return InitializeResult{
		ProtocolVersion: protocolVersion,
		ServerInfo:      ServerInfo{Name: "raid-optimizer", Version: Version},
		Capabilities:    Capabilities{Tools: &ToolsCapability{}},
	}, nil
}

// ToolsListResult answers tools/list.
type ToolsListResult struct {
	Tools []ToolDefinition `json:"tools"`
}

func (s *Server) listTools(context.Context, json.RawMessage) (any, error) {
	return ToolsListResult{Tools: s.Tools()}, nil
}

// ToolCallParams are the params of tools/call.
type ToolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolCallResult answers tools/call.
type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ToolError is the text of a tool result with IsError set.
type ToolError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (any, error) {
	var p ToolCallParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, &invalidParams{fmt.Errorf("invalid params: %w", err)}
	}
	t, ok := s.tools[p.Name]
	if !ok {
		return nil, &invalidParams{fmt.Errorf("unknown tool: %s", p.Name)}
	}

	result, err := t.call(ctx, p.Arguments)
	var ip *invalidParams
	switch {
	case errors.As(err, &ip):
		return nil, err
	case err != nil:
		// Domain failures go back as tool content so the caller can read
		// the kind and the offending id.
		s.logger.Debug("tool failed", "tool", p.Name, "error", err)
		return textResult(ToolError{
			Error:   service.ErrorKind(err),
			Message: err.Error(),
			ID:      raid.OffendingID(err),
		}, true)
	}
	return textResult(result, false)
}

func textResult(v any, isError bool) (ToolCallResult, error) {
	text, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ToolCallResult{}, fmt.Errorf("marshaling tool result: %w", err)
	}
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: string(text)}},
		IsError: isError,
	}, nil
}
