package mcp

import "encoding/json"

const (
	jsonrpcVersion  = "2.0"
	protocolVersion = "2024-11-05"
)

// JSON-RPC 2.0 envelope. A Request without an ID is a notification and gets
// no Response.
type (
	Request struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id,omitempty"`
		Method  string          `json:"method"`
		Params  json.RawMessage `json:"params,omitempty"`
	}

	Response struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      json.RawMessage `json:"id,omitempty"`
		Result  any             `json:"result,omitempty"`
		Error   *RPCError       `json:"error,omitempty"`
	}

	RPCError struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
)

// Standard JSON-RPC error codes used by the server.
const (
	CodeParseError     = -32700
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
)

func resultFor(req *Request, v any) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: req.ID, Result: v}
}

func errorFor(req *Request, code int, msg string) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: req.ID, Error: &RPCError{Code: code, Message: msg}}
}

// MCP payloads carried in Response.Result.
type (
	InitializeResult struct {
		ProtocolVersion string     `json:"protocolVersion"`
		ServerInfo      ServerInfo `json:"serverInfo"`
		Capabilities    any        `json:"capabilities"`
	}

	ServerInfo struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}

	ToolDefinition struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		InputSchema any    `json:"inputSchema"`
	}

	ToolsListResult struct {
		Tools []ToolDefinition `json:"tools"`
	}

	ToolCallParams struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments,omitempty"`
	}

	// ToolCallResult reports tool failures through IsError rather than as
	// JSON-RPC errors.
	ToolCallResult struct {
		Content []ContentBlock `json:"content"`
		IsError bool           `json:"isError,omitempty"`
	}

	// ContentBlock is either text or a base64 image.
	ContentBlock struct {
		Type     string `json:"type"`
		Text     string `json:"text,omitempty"`
		Data     string `json:"data,omitempty"`
		MIMEType string `json:"mimeType,omitempty"`
	}
)

// ContentBlock types.
const (
	BlockText  = "text"
	BlockImage = "image"
)
