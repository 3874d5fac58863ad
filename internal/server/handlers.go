package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/transom-dev/transom/internal/contract"
	"github.com/transom-dev/transom/internal/log"
	"github.com/transom-dev/transom/internal/metrics"
	"github.com/transom-dev/transom/internal/registry"
	"github.com/transom-dev/transom/internal/router"
	"github.com/transom-dev/transom/internal/rpc"
)

// maxBodyBytes caps the accepted request body size.
const maxBodyBytes = 8 << 20

// methodFunc handles one dispatched RPC method.
type methodFunc func(ctx context.Context, params json.RawMessage) (any, *rpc.Error)

// Handler dispatches JSON-RPC requests to the broker's contract operations.
type Handler struct {
	registry *registry.Registry
	router   *router.Router
	recorder *metrics.Recorder
	tracer   trace.Tracer
	methods  map[string]methodFunc
}

// NewHandler creates the RPC handler with its method dispatch table.
// A nil tracer disables span creation.
func NewHandler(reg *registry.Registry, rt *router.Router, recorder *metrics.Recorder, tracer trace.Tracer) *Handler {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	h := &Handler{
		registry: reg,
		router:   rt,
		recorder: recorder,
		tracer:   tracer,
	}
	h.methods = map[string]methodFunc{
		"contract.register": h.handleRegister,
		"contract.test":     h.handleTest,
		"contract.call":     h.handleCall,
		"contract.list":     h.handleList,
	}
	return h
}

// ServeRPC handles a JSON-RPC 2.0 request body: a single request object or a
// batch array. Batch items are answered in order, each correlated by its own
// id; a failing item never poisons its siblings. Notifications (no id) are
// processed without a response entry.
// POST /rpc
func (h *Handler) ServeRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.writeJSON(w, rpc.NewErrorResponse(nil, rpc.NewParseError("failed to read request body")))
		return
	}

	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		h.writeJSON(w, rpc.NewErrorResponse(nil, rpc.NewParseError("empty request body")))
		return
	}
	if !json.Valid(body) {
		h.writeJSON(w, rpc.NewErrorResponse(nil, rpc.NewParseError("invalid JSON")))
		return
	}

	if body[0] == '[' {
		h.serveBatch(r.Context(), w, body)
		return
	}

	resp := h.handleOne(r.Context(), body)
	if resp == nil {
		// Notification: processed, nothing to send back.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, resp)
}

func (h *Handler) serveBatch(ctx context.Context, w http.ResponseWriter, body []byte) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		h.writeJSON(w, rpc.NewErrorResponse(nil, rpc.NewParseError(err.Error())))
		return
	}
	if len(items) == 0 {
		h.writeJSON(w, rpc.NewErrorResponse(nil, rpc.NewInvalidRequest("empty batch")))
		return
	}

	responses := make([]*rpc.Response, 0, len(items))
	for _, item := range items {
		if resp := h.handleOne(ctx, item); resp != nil {
			responses = append(responses, resp)
		}
	}

	if len(responses) == 0 {
		// All notifications.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, responses)
}

// handleOne processes a single request object. It returns nil for
// notifications, which get no response.
func (h *Handler) handleOne(ctx context.Context, raw []byte) *rpc.Response {
	var req rpc.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return rpc.NewErrorResponse(nil, rpc.NewInvalidRequest(err.Error()))
	}

	notification := len(req.ID) == 0 || string(req.ID) == "null"

	if req.JSONRPC != rpc.Version {
		if notification {
			return nil
		}
		return rpc.NewErrorResponse(req.ID, rpc.NewInvalidRequest(`jsonrpc must be "2.0"`))
	}
	if req.Method == "" {
		if notification {
			return nil
		}
		return rpc.NewErrorResponse(req.ID, rpc.NewInvalidRequest("method is required"))
	}

	method, ok := h.methods[req.Method]
	if !ok {
		if notification {
			log.Debug(log.CatRPC, "unknown notification ignored", "method", req.Method)
			return nil
		}
		return rpc.NewErrorResponse(req.ID, rpc.NewMethodNotFound(req.Method))
	}

	log.Debug(log.CatRPC, "dispatching", "method", req.Method, "notification", notification)

	ctx, span := h.tracer.Start(ctx, req.Method, trace.WithSpanKind(trace.SpanKindServer))
	span.SetAttributes(
		attribute.String("rpc.method", req.Method),
		attribute.Bool("rpc.notification", notification),
	)

	result, rpcErr := method(ctx, req.Params)
	if rpcErr != nil {
		span.SetStatus(codes.Error, rpcErr.Message)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()

	if notification {
		return nil
	}
	if rpcErr != nil {
		return rpc.NewErrorResponse(req.ID, rpcErr)
	}
	return rpc.NewResponse(req.ID, result)
}

// === Method handlers ===

type schemaPair struct {
	Input  json.RawMessage `json:"input"`
	Output json.RawMessage `json:"output"`
}

type registerProviderResult struct {
	Status   string     `json:"status"`
	Provider string     `json:"provider"`
	Matches  []string   `json:"matches"`
	Schema   schemaPair `json:"schema"`
}

type providerRef struct {
	URI      string `json:"uri"`
	Endpoint string `json:"endpoint,omitempty"`
}

type registerConsumerResult struct {
	Status    string        `json:"status"`
	Consumer  string        `json:"consumer"`
	Providers []providerRef `json:"providers"`
	Expects   schemaPair    `json:"expects"`
}

func (h *Handler) handleRegister(ctx context.Context, params json.RawMessage) (any, *rpc.Error) {
	var req registry.RegisterRequest
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, rpc.NewInvalidParams(err.Error())
	}

	res, err := h.registry.Register(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}

	c := res.Contract
	switch c.Kind {
	case contract.KindProvider:
		matches := res.Matches
		if matches == nil {
			matches = []string{}
		}
		return registerProviderResult{
			Status:   "registered",
			Provider: c.URI,
			Matches:  matches,
			Schema:   schemaPair{Input: c.InputSchema, Output: c.OutputSchema},
		}, nil
	default:
		providers := make([]providerRef, 0, len(res.Matches))
		for _, uri := range res.Matches {
			ref := providerRef{URI: uri}
			if p, err := h.registry.Get(uri); err == nil {
				ref.Endpoint = p.Endpoint
			}
			providers = append(providers, ref)
		}
		return registerConsumerResult{
			Status:    "registered",
			Consumer:  c.URI,
			Providers: providers,
			Expects:   schemaPair{Input: c.InputSchema, Output: c.OutputSchema},
		}, nil
	}
}

type testParams struct {
	From     string          `json:"from"`
	To       string          `json:"to"`
	TestData json.RawMessage `json:"testData"`
	DryRun   bool            `json:"dryRun"`
}

func (h *Handler) handleTest(ctx context.Context, params json.RawMessage) (any, *rpc.Error) {
	var p testParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, rpc.NewInvalidParams(err.Error())
	}
	if p.From == "" {
		return nil, rpc.NewInvalidParams("from is required")
	}
	if p.To == "" {
		return nil, rpc.NewInvalidParams("to is required")
	}
	if len(p.TestData) == 0 {
		return nil, rpc.NewInvalidParams("testData is required")
	}
	if !p.DryRun {
		return nil, rpc.NewInvalidParams("dryRun must be true")
	}

	trace, err := h.router.Test(ctx, p.From, p.To, p.TestData)
	if err != nil {
		return nil, mapError(err)
	}
	return trace, nil
}

type callParams struct {
	From string          `json:"from"`
	Data json.RawMessage `json:"data"`
}

func (h *Handler) handleCall(ctx context.Context, params json.RawMessage) (any, *rpc.Error) {
	var p callParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, rpc.NewInvalidParams(err.Error())
	}
	if p.From == "" {
		return nil, rpc.NewInvalidParams("from is required")
	}
	if len(p.Data) == 0 {
		return nil, rpc.NewInvalidParams("data is required")
	}

	result, err := h.router.Call(ctx, p.From, p.Data)
	if err != nil {
		if errors.Is(err, contract.ErrNoProviderMatch) {
			return nil, rpc.NewNoProviderError(p.From)
		}
		return nil, mapError(err)
	}
	return result, nil
}

type listParams struct {
	Kind string `json:"kind,omitempty"`
}

type contractSummary struct {
	URI          string `json:"uri"`
	Kind         string `json:"kind"`
	Endpoint     string `json:"endpoint,omitempty"`
	RegisteredAt string `json:"registeredAt"`
}

type listResult struct {
	Contracts []contractSummary `json:"contracts"`
	Total     int               `json:"total"`
}

func (h *Handler) handleList(_ context.Context, params json.RawMessage) (any, *rpc.Error) {
	var p listParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, rpc.NewInvalidParams(err.Error())
		}
	}

	kind := contract.Kind(p.Kind)
	if p.Kind != "" && !kind.Valid() {
		return nil, rpc.NewInvalidParams(`kind must be "provider" or "consumer"`)
	}

	contracts := h.registry.List(kind)
	result := listResult{
		Contracts: make([]contractSummary, 0, len(contracts)),
		Total:     len(contracts),
	}
	for _, c := range contracts {
		result.Contracts = append(result.Contracts, contractSummary{
			URI:          c.URI,
			Kind:         string(c.Kind),
			Endpoint:     c.Endpoint,
			RegisteredAt: c.RegisteredAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return result, nil
}

// === Health ===

// HealthResponse is the response body for the health endpoint.
type HealthResponse struct {
	Status    string               `json:"status"`
	Providers int                  `json:"providers"`
	Consumers int                  `json:"consumers"`
	Calls     *metrics.CallMetrics `json:"calls,omitempty"`
}

// Health reports broker liveness plus registry counts.
// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	providers, consumers := h.registry.Counts()

	resp := HealthResponse{
		Status:    "ok",
		Providers: providers,
		Consumers: consumers,
	}
	if h.recorder != nil {
		snapshot := h.recorder.Snapshot()
		resp.Calls = &snapshot
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error(log.CatRPC, "failed to encode health response", "error", err)
	}
}

// === Helpers ===

// mapError translates internal failures onto the RPC taxonomy.
func mapError(err error) *rpc.Error {
	var rpcErr *rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	var ve *contract.ValidationError
	if errors.As(err, &ve) {
		return rpc.NewInvalidParams(ve.Error())
	}

	var re *contract.ResourceError
	if errors.As(err, &re) {
		return rpc.NewInternalError(re.Message, re.Detail)
	}

	if errors.Is(err, contract.ErrNoProviderMatch) {
		return &rpc.Error{
			Code:    rpc.CodeNoProvider,
			Message: "No provider matches consumer",
			Data:    rpc.ErrorData{Detail: err.Error()},
		}
	}

	return rpc.NewInternalError("Internal error", err.Error())
}

func (h *Handler) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error(log.CatRPC, "failed to encode response", "error", err)
	}
}
