package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mailcore/internal/tools"
)

const (
	protocolVersion = "2024-11-05"

	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// Version is reported in serverInfo.
var Version = "dev"

// Server represents the MCP server
type Server struct {
	logger *logrus.Logger
	tools  *tools.Registry
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type callParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// NewServer creates a new MCP server instance
func NewServer(registry *tools.Registry, logger *logrus.Logger) *Server {
	return &Server{
		logger: logger,
		tools:  registry,
	}
}

// Run serves newline-delimited JSON-RPC requests from in until EOF or ctx
// is cancelled.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	s.logger.Info("Starting MCP server with stdio transport")

	decoder := json.NewDecoder(in)
	encoder := json.NewEncoder(out)

	for {
		if ctx.Err() != nil {
			return nil
		}

		var req request
		if err := decoder.Decode(&req); err != nil {
			if err == io.EOF {
				return nil
			}
			var syntax *json.SyntaxError
			if errors.As(err, &syntax) {
				// The stream cannot be resynchronised after a syntax error.
				s.logger.WithError(err).Error("Failed to decode request")
				_ = encoder.Encode(response{
					JSONRPC: "2.0",
					ID:      json.RawMessage("null"),
					Error:   &rpcError{Code: codeParseError, Message: "parse error"},
				})
				return errors.Wrap(err, "decode request")
			}
			s.logger.WithError(err).Warn("Skipping malformed request")
			continue
		}

		resp := s.handleRequest(ctx, &req)
		if resp == nil {
			continue
		}
		if err := encoder.Encode(resp); err != nil {
			return errors.Wrap(err, "encode response")
		}
	}
}

// handleRequest processes an MCP request. Notifications get no response.
func (s *Server) handleRequest(ctx context.Context, req *request) *response {
	if len(req.ID) == 0 {
		s.logger.WithField("method", req.Method).Debug("Notification received")
		return nil
	}

	resp := &response{JSONRPC: "2.0", ID: req.ID}
	switch req.Method {
	case "initialize":
		resp.Result = map[string]interface{}{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "mailcore",
				"version": Version,
			},
		}
	case "ping":
		resp.Result = map[string]interface{}{}
	case "tools/list":
		resp.Result = map[string]interface{}{
			"tools": s.tools.GetToolDefinitions(),
		}
	case "tools/call":
		result, rpcErr := s.callTool(ctx, req.Params)
		if rpcErr != nil {
			resp.Error = rpcErr
		} else {
			resp.Result = result
		}
	default:
		resp.Error = &rpcError{
			Code:    codeMethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		}
	}
	return resp
}

func (s *Server) callTool(ctx context.Context, raw json.RawMessage) (interface{}, *rpcError) {
	var params callParams
	if len(raw) == 0 || json.Unmarshal(raw, &params) != nil {
		return nil, &rpcError{Code: codeInvalidParams, Message: "invalid tools/call params"}
	}

	tool, exists := s.tools.GetTool(params.Name)
	if !exists {
		return nil, &rpcError{
			Code:    codeMethodNotFound,
			Message: fmt.Sprintf("Tool not found: %s", params.Name),
		}
	}
	if params.Arguments == nil {
		params.Arguments = map[string]interface{}{}
	}

	logger := s.logger.WithField("tool", params.Name)
	result, err := tool.Execute(ctx, params.Arguments)
	if err != nil {
		logger.WithError(err).Warn("Tool failed")
		return nil, &rpcError{
			Code:    codeInternalError,
			Message: err.Error(),
			Data:    tools.ErrorData(err),
		}
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		logger.WithError(err).Error("Failed to encode tool result")
		return nil, &rpcError{Code: codeInternalError, Message: "failed to encode result"}
	}

	return map[string]interface{}{
		"content": []map[string]interface{}{
			{
				"type": "text",
				"text": string(resultJSON),
			},
		},
	}, nil
}
