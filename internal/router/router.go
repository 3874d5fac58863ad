// Package router orchestrates live calls: it resolves a Consumer to a
// matched Provider through the match index, runs the forward transform,
// invokes the Provider endpoint over HTTP, and runs the reverse transform on
// the response. Matching info is read before any network I/O so no registry
// lock is held across a Provider call.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/transom-dev/transom/internal/contract"
	"github.com/transom-dev/transom/internal/log"
	"github.com/transom-dev/transom/internal/metrics"
	"github.com/transom-dev/transom/internal/registry"
	"github.com/transom-dev/transom/internal/transform"
)

// MsgProviderUnreachable is the stable message for provider invocation failures.
const MsgProviderUnreachable = "Provider endpoint unreachable"

// DefaultProviderTimeout bounds a single Provider invocation.
const DefaultProviderTimeout = 10 * time.Second

// maxResponseBytes caps how much of a Provider response body is read.
const maxResponseBytes = 4 << 20

// Router routes Consumer calls to matched Providers.
type Router struct {
	registry *registry.Registry
	engine   *transform.Engine
	client   *http.Client
	recorder *metrics.Recorder
}

// Config configures a Router.
type Config struct {
	Registry *registry.Registry
	Engine   *transform.Engine
	Recorder *metrics.Recorder
	// ProviderTimeout bounds each Provider invocation.
	// Zero uses DefaultProviderTimeout.
	ProviderTimeout time.Duration
	// Client overrides the HTTP client (tests). When set, ProviderTimeout
	// is ignored in favor of the client's own timeout.
	Client *http.Client
}

// New creates a Router.
func New(cfg Config) *Router {
	client := cfg.Client
	if client == nil {
		timeout := cfg.ProviderTimeout
		if timeout <= 0 {
			timeout = DefaultProviderTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Router{
		registry: cfg.Registry,
		engine:   cfg.Engine,
		client:   client,
		recorder: cfg.Recorder,
	}
}

// Call routes data from the Consumer to its matched Provider and back.
// When more than one Provider matches, the earliest registered wins.
func (r *Router) Call(ctx context.Context, consumerURI string, data json.RawMessage) (*contract.CallResult, error) {
	providers := r.registry.Providers(consumerURI)
	if len(providers) == 0 {
		return nil, fmt.Errorf("%q: %w", consumerURI, contract.ErrNoProviderMatch)
	}
	providerURI := providers[0]

	provider, err := r.registry.Get(providerURI)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", consumerURI, contract.ErrNoProviderMatch)
	}
	if provider.Endpoint == "" {
		return nil, contract.NewResourceError(MsgProviderUnreachable, fmt.Sprintf("%s has no endpoint", providerURI))
	}

	requestID := uuid.NewString()
	start := time.Now()

	forward, fwdApplied, err := r.engine.Transform(ctx, data, consumerURI, providerURI, contract.Forward)
	if err != nil {
		r.record(providerURI, start, false)
		return nil, err
	}

	response, err := r.invoke(ctx, provider.Endpoint, forward)
	if err != nil {
		r.record(providerURI, start, false)
		log.ErrorErr(log.CatRouter, "provider invocation failed", err,
			"requestId", requestID, "provider", providerURI)
		return nil, err
	}

	result, revApplied, err := r.engine.Transform(ctx, response, providerURI, consumerURI, contract.Reverse)
	if err != nil {
		r.record(providerURI, start, false)
		return nil, err
	}

	latency := time.Since(start)
	r.record(providerURI, start, true)

	log.Info(log.CatRouter, "call routed",
		"requestId", requestID, "consumer", consumerURI, "provider", providerURI,
		"latencyMs", latency.Milliseconds())

	return &contract.CallResult{
		Data: result,
		Meta: contract.CallMeta{
			TransformApplied: fwdApplied || revApplied,
			LatencyMs:        float64(latency.Microseconds()) / 1000.0,
			ProviderURI:      providerURI,
			RequestID:        requestID,
		},
	}, nil
}

// Test performs a dry-run transformation between a Consumer and a Provider,
// returning the full trace without invoking the real Provider.
func (r *Router) Test(ctx context.Context, fromURI, toURI string, testData json.RawMessage) (*contract.TransformTrace, error) {
	from, err := r.registry.Get(fromURI)
	if err != nil {
		return nil, &contract.ValidationError{Field: "from", Reason: "is not a registered contract"}
	}
	if from.Kind != contract.KindConsumer {
		return nil, &contract.ValidationError{Field: "from", Reason: "must name a consumer contract"}
	}
	to, err := r.registry.Get(toURI)
	if err != nil {
		return nil, &contract.ValidationError{Field: "to", Reason: "is not a registered contract"}
	}
	if to.Kind != contract.KindProvider {
		return nil, &contract.ValidationError{Field: "to", Reason: "must name a provider contract"}
	}

	return r.engine.TraceDryRun(ctx, testData, fromURI, toURI)
}

// invoke POSTs the transformed request to the Provider endpoint and returns
// its JSON response body. Transport failures and non-2xx statuses surface as
// resource errors; the broker never forwards a malformed Provider body.
func (r *Router) invoke(ctx context.Context, endpoint string, body json.RawMessage) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, contract.WrapResourceError(MsgProviderUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, contract.WrapResourceError(MsgProviderUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, contract.WrapResourceError(MsgProviderUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, contract.NewResourceError(MsgProviderUnreachable,
			fmt.Sprintf("%s returned status %d", endpoint, resp.StatusCode))
	}

	if !json.Valid(data) {
		return nil, contract.NewResourceError(MsgProviderUnreachable,
			fmt.Sprintf("%s returned a non-JSON body", endpoint))
	}

	return data, nil
}

func (r *Router) record(providerURI string, start time.Time, succeeded bool) {
	if r.recorder != nil {
		r.recorder.Record(providerURI, time.Since(start), succeeded)
	}
}
