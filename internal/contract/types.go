// Package contract defines the domain model for the broker: registered
// Provider/Consumer contracts, the transform specifications that convert data
// between their shapes, and the ephemeral call/trace results.
package contract

import (
	"encoding/json"
	"time"
)

// Kind distinguishes the two sides of a contract.
type Kind string

const (
	// KindProvider is a backend capability with declared input/output schemas
	// and a callable endpoint.
	KindProvider Kind = "provider"
	// KindConsumer is a caller with declared expected input/output schemas,
	// seeking a compatible Provider.
	KindConsumer Kind = "consumer"
)

// Valid reports whether k is a known contract kind.
func (k Kind) Valid() bool {
	return k == KindProvider || k == KindConsumer
}

// Contract is a registered declaration of a Provider's or Consumer's data
// shapes. Contracts are immutable once created; re-registering a uri is
// rejected.
//
// For a Provider, InputSchema/OutputSchema are the schemas of its invocation
// endpoint. For a Consumer, InputSchema is the shape it expects to receive
// back (expects-input) and OutputSchema the shape it sends (expects-output).
type Contract struct {
	URI          string          `json:"uri"`
	Kind         Kind            `json:"kind"`
	InputSchema  json.RawMessage `json:"inputSchema"`
	OutputSchema json.RawMessage `json:"outputSchema"`
	Endpoint     string          `json:"endpoint,omitempty"` // Provider only
	RegisteredAt time.Time       `json:"registeredAt"`
}

// Direction selects which way a TransformSpec converts data.
type Direction string

const (
	// Forward converts Consumer-shaped data into Provider-shaped data.
	Forward Direction = "forward"
	// Reverse converts Provider-shaped data back into Consumer-shaped data.
	Reverse Direction = "reverse"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == Forward || d == Reverse
}

// FieldMapping copies one value from a source path to a destination path.
// Paths use dot notation ("user.address.city").
type FieldMapping struct {
	Source string `json:"sourcePath"`
	Dest   string `json:"destPath"`
}

// TransformSpec converts data between a Consumer's and a Provider's shape in
// one direction. FieldMap entries apply in declaration order; Script, when
// present, runs in the sandbox against the post-field-map value.
type TransformSpec struct {
	FromURI   string         `json:"fromUri"`
	ToURI     string         `json:"toUri"`
	Direction Direction      `json:"direction"`
	FieldMap  []FieldMapping `json:"fieldMap,omitempty"`
	Script    string         `json:"script,omitempty"`
}

// Identity reports whether the spec carries no mapping work at all, in which
// case data passes through unchanged.
func (s *TransformSpec) Identity() bool {
	return s == nil || (len(s.FieldMap) == 0 && s.Script == "")
}

// Trace step names, in the order they appear in a dry run.
const (
	StepInput            = "input"
	StepTransformed      = "transformed"
	StepProviderResponse = "provider-response"
	StepOutput           = "output"
)

// TraceStep is one observed stage of a dry-run transformation.
type TraceStep struct {
	Step string          `json:"step"`
	Data json.RawMessage `json:"data"`
}

// TransformTrace is the ordered step list produced by contract.test.
type TransformTrace struct {
	Steps []TraceStep `json:"steps"`
}

// CallMeta describes how a live call was fulfilled.
type CallMeta struct {
	TransformApplied bool    `json:"transformApplied"`
	LatencyMs        float64 `json:"latency"`
	ProviderURI      string  `json:"providerUri"`
	RequestID        string  `json:"requestId,omitempty"`
}

// CallResult is the outcome of a routed live call.
type CallResult struct {
	Data json.RawMessage `json:"data"`
	Meta CallMeta        `json:"meta"`
}
