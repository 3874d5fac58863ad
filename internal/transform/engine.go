// Package transform converts data values between a Consumer's and a
// Provider's shape using the registered TransformSpec for the pair: an
// ordered field map applied by path, followed by an optional sandboxed
// script. The engine is pure and deterministic; identical input and an
// unchanged spec always yield identical output.
package transform

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/transom-dev/transom/internal/contract"
	"github.com/transom-dev/transom/internal/log"
)

// SpecSource resolves the transform spec for an ordered (consumer, provider)
// pair and direction. The registry implements this.
type SpecSource interface {
	Spec(consumerURI, providerURI string, dir contract.Direction) (*contract.TransformSpec, bool)
}

// ScriptExecutor runs a transform script against a single value.
// The sandbox implements this.
type ScriptExecutor interface {
	Execute(ctx context.Context, script string, input json.RawMessage) (json.RawMessage, error)
}

// Engine applies registered transforms between contract shapes.
type Engine struct {
	specs SpecSource
	exec  ScriptExecutor
}

// NewEngine creates an engine resolving specs from specs and running scripts
// through exec.
func NewEngine(specs SpecSource, exec ScriptExecutor) *Engine {
	return &Engine{specs: specs, exec: exec}
}

// Transform converts data from the fromURI shape to the toURI shape in the
// given direction. The second return reports whether a registered spec was
// applied; without one, identity mapping passes data through unchanged.
func (e *Engine) Transform(ctx context.Context, data json.RawMessage, fromURI, toURI string, dir contract.Direction) (json.RawMessage, bool, error) {
	consumerURI, providerURI := orient(fromURI, toURI, dir)

	spec, ok := e.specs.Spec(consumerURI, providerURI, dir)
	if !ok || spec.Identity() {
		return data, false, nil
	}

	out := data
	if len(spec.FieldMap) > 0 {
		mapped, err := applyFieldMap(data, spec.FieldMap)
		if err != nil {
			return nil, false, err
		}
		out = mapped
	}

	if spec.Script != "" {
		scripted, err := e.exec.Execute(ctx, spec.Script, out)
		if err != nil {
			return nil, false, err
		}
		out = scripted
	}

	log.Debug(log.CatTransform, "transform applied",
		"consumer", consumerURI, "provider", providerURI, "direction", dir,
		"mappings", len(spec.FieldMap), "script", spec.Script != "")

	return out, true, nil
}

// TraceDryRun walks a full round trip without touching the real Provider:
// forward transform, a simulated provider response echoing the transformed
// value, then the reverse transform. The returned trace lists the four
// observed steps in order.
func (e *Engine) TraceDryRun(ctx context.Context, data json.RawMessage, consumerURI, providerURI string) (*contract.TransformTrace, error) {
	trace := &contract.TransformTrace{}
	trace.Steps = append(trace.Steps, contract.TraceStep{Step: contract.StepInput, Data: data})

	forward, _, err := e.Transform(ctx, data, consumerURI, providerURI, contract.Forward)
	if err != nil {
		return nil, err
	}
	trace.Steps = append(trace.Steps, contract.TraceStep{Step: contract.StepTransformed, Data: forward})

	// Dry runs simulate the provider by echoing the request it would receive.
	providerResponse := forward
	trace.Steps = append(trace.Steps, contract.TraceStep{Step: contract.StepProviderResponse, Data: providerResponse})

	output, _, err := e.Transform(ctx, providerResponse, providerURI, consumerURI, contract.Reverse)
	if err != nil {
		return nil, err
	}
	trace.Steps = append(trace.Steps, contract.TraceStep{Step: contract.StepOutput, Data: output})

	return trace, nil
}

// applyFieldMap copies each mapped value from its source path to its
// destination path, in declaration order, into a fresh object. Fields the
// map does not declare are dropped; a missing source path skips the entry.
func applyFieldMap(data json.RawMessage, fieldMap []contract.FieldMapping) (json.RawMessage, error) {
	out := []byte("{}")

	for _, m := range fieldMap {
		value := gjson.GetBytes(data, m.Source)
		if !value.Exists() {
			continue
		}

		updated, err := sjson.SetRawBytes(out, m.Dest, []byte(value.Raw))
		if err != nil {
			return nil, fmt.Errorf("setting %q from %q: %w", m.Dest, m.Source, err)
		}
		out = updated
	}

	return out, nil
}

// orient maps a (from, to, direction) triple onto the ordered
// (consumer, provider) pair specs are keyed by. Forward runs consumer to
// provider; reverse runs provider back to consumer.
func orient(fromURI, toURI string, dir contract.Direction) (consumerURI, providerURI string) {
	if dir == contract.Reverse {
		return toURI, fromURI
	}
	return fromURI, toURI
}
