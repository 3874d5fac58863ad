package rpc

import (
	"encoding/json"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{Code: -32600, Message: "Invalid Request"}
	got := err.Error()
	want := "RPC error -32600: Invalid Request"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		wantCode int
	}{
		{"ParseError", NewParseError("bad json"), CodeParseError},
		{"InvalidRequest", NewInvalidRequest("not an object"), CodeInvalidRequest},
		{"MethodNotFound", NewMethodNotFound("contract.unknown"), CodeMethodNotFound},
		{"InvalidParams", NewInvalidParams("uri is required"), CodeInvalidParams},
		{"InternalError", NewInternalError("Invalid JSON", "trailing comma"), CodeInternalError},
		{"NoProvider", NewNoProviderError("ui/dashboard/v2"), CodeNoProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("Code = %d, want %d", tt.err.Code, tt.wantCode)
			}
		})
	}
}

func TestNewInvalidParams_MessageNamesField(t *testing.T) {
	err := NewInvalidParams("inputSchemaPath is required")
	if err.Message != "inputSchemaPath is required" {
		t.Errorf("Message = %q, want field-naming message", err.Message)
	}
	if err.Data != nil {
		t.Error("Data should be empty for invalid params")
	}
}

func TestNewInternalError_DetailInData(t *testing.T) {
	err := NewInternalError("Schema file not found", "schemas/missing.json")
	data, ok := err.Data.(ErrorData)
	if !ok {
		t.Fatalf("Data = %T, want ErrorData", err.Data)
	}
	if data.Detail != "schemas/missing.json" {
		t.Errorf("Detail = %q, want %q", data.Detail, "schemas/missing.json")
	}

	bare := NewInternalError("Script error", "")
	if bare.Data != nil {
		t.Error("Data should be nil when detail is empty")
	}
}

func TestNewResponse(t *testing.T) {
	id := json.RawMessage(`1`)
	resp := NewResponse(id, map[string]string{"status": "registered"})

	if resp.JSONRPC != Version {
		t.Errorf("JSONRPC = %q, want %q", resp.JSONRPC, Version)
	}
	if string(resp.ID) != "1" {
		t.Errorf("ID = %q, want %q", string(resp.ID), "1")
	}
	if resp.Error != nil {
		t.Error("Error should be nil for success response")
	}
}

func TestNewErrorResponse(t *testing.T) {
	id := json.RawMessage(`"req-123"`)
	rpcErr := NewMethodNotFound("contract.delete")
	resp := NewErrorResponse(id, rpcErr)

	if resp.JSONRPC != Version {
		t.Errorf("JSONRPC = %q, want %q", resp.JSONRPC, Version)
	}
	if string(resp.ID) != `"req-123"` {
		t.Errorf("ID = %q, want %q", string(resp.ID), `"req-123"`)
	}
	if resp.Error == nil || resp.Error.Code != CodeMethodNotFound {
		t.Errorf("Error = %+v, want method not found", resp.Error)
	}
	if resp.Result != nil {
		t.Error("Result should be nil for error response")
	}
}

func TestRequest_UnmarshalIDForms(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"number", `{"jsonrpc":"2.0","id":7,"method":"contract.list"}`, "7"},
		{"string", `{"jsonrpc":"2.0","id":"a","method":"contract.list"}`, `"a"`},
		{"missing", `{"jsonrpc":"2.0","method":"contract.list"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req Request
			if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if string(req.ID) != tt.want {
				t.Errorf("ID = %q, want %q", string(req.ID), tt.want)
			}
		})
	}
}

func TestResponse_ErrorEnvelopeShape(t *testing.T) {
	resp := NewErrorResponse(json.RawMessage(`3`), NewInternalError("Invalid JSON", "unexpected end of input"))

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded struct {
		JSONRPC string `json:"jsonrpc"`
		ID      int    `json:"id"`
		Error   struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Data    struct {
				Detail string `json:"detail"`
			} `json:"data"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if decoded.Error.Code != CodeInternalError {
		t.Errorf("code = %d, want %d", decoded.Error.Code, CodeInternalError)
	}
	if decoded.Error.Message != "Invalid JSON" {
		t.Errorf("message = %q, want %q", decoded.Error.Message, "Invalid JSON")
	}
	if decoded.Error.Data.Detail != "unexpected end of input" {
		t.Errorf("data.detail = %q, want cause string", decoded.Error.Data.Detail)
	}
}
