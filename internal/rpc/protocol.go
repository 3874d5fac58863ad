// Package rpc implements the JSON-RPC 2.0 wire protocol for the broker.
//
// The broker exposes its contract operations over JSON-RPC 2.0 carried on a
// single HTTP POST endpoint. A request body is either one request object or
// an array of request objects (batch); batch items are answered in order,
// each correlated by its own id.
package rpc

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC protocol version string.
const Version = "2.0"

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"` // Can be string, number, or null
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error represents a JSON-RPC 2.0 error object.
// Data, when present, carries a human-readable cause under "detail".
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// ErrorData is the payload carried under an Error's Data field.
type ErrorData struct {
	Detail string `json:"detail"`
}

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Broker application error codes (reserved range: -32000 to -32099).
const (
	// CodeNoProvider reports that no registered Provider matches the Consumer.
	CodeNoProvider = -32001
)

// NewParseError creates a parse error for an unreadable request body.
func NewParseError(detail string) *Error {
	return &Error{Code: CodeParseError, Message: "Parse error", Data: ErrorData{Detail: detail}}
}

// NewInvalidRequest creates an invalid request error.
func NewInvalidRequest(detail string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: "Invalid Request", Data: ErrorData{Detail: detail}}
}

// NewMethodNotFound creates a method not found error.
func NewMethodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: "Method not found", Data: ErrorData{Detail: method}}
}

// NewInvalidParams creates an invalid params error. The message names the
// offending field so callers can correct their registration.
func NewInvalidParams(message string) *Error {
	return &Error{Code: CodeInvalidParams, Message: message}
}

// NewInternalError creates an internal error with a cause string in data.detail.
func NewInternalError(message, detail string) *Error {
	e := &Error{Code: CodeInternalError, Message: message}
	if detail != "" {
		e.Data = ErrorData{Detail: detail}
	}
	return e
}

// NewNoProviderError reports that the given Consumer uri has no matched Provider.
func NewNoProviderError(consumerURI string) *Error {
	return &Error{
		Code:    CodeNoProvider,
		Message: "No provider matches consumer",
		Data:    ErrorData{Detail: consumerURI},
	}
}

// NewResponse creates a success response with the given result.
func NewResponse(id json.RawMessage, result any) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Result:  result,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id json.RawMessage, err *Error) *Response {
	return &Response{
		JSONRPC: Version,
		ID:      id,
		Error:   err,
	}
}
