package registry

import (
	"encoding/json"
	"strings"

	"github.com/transom-dev/transom/internal/contract"
	"github.com/transom-dev/transom/internal/log"
)

// MatchIndex is the derived, incrementally maintained mapping between
// compatible consumers and providers. Lookups never rescan the registry.
type MatchIndex struct {
	consumerToProviders map[string][]string
	providerToConsumers map[string][]string
}

// NewMatchIndex creates an empty index.
func NewMatchIndex() *MatchIndex {
	return &MatchIndex{
		consumerToProviders: make(map[string][]string),
		providerToConsumers: make(map[string][]string),
	}
}

// Add records a compatible (consumer, provider) pair in both directions.
func (m *MatchIndex) Add(consumerURI, providerURI string) {
	m.consumerToProviders[consumerURI] = append(m.consumerToProviders[consumerURI], providerURI)
	m.providerToConsumers[providerURI] = append(m.providerToConsumers[providerURI], consumerURI)
}

// Providers returns a copy of the providers matched to a consumer.
func (m *MatchIndex) Providers(consumerURI string) []string {
	return append([]string(nil), m.consumerToProviders[consumerURI]...)
}

// Consumers returns a copy of the consumers matched to a provider.
func (m *MatchIndex) Consumers(providerURI string) []string {
	return append([]string(nil), m.providerToConsumers[providerURI]...)
}

// compatible reports whether the consumer can talk to the provider: the
// forward transform must cover the provider's required input fields and the
// reverse transform must cover the consumer's required expects-input fields.
// Absent an explicit spec, identity mapping (field-name equality) applies.
// Caller holds at least a read lock.
func (r *Registry) compatible(consumer, provider *contract.Contract) bool {
	forward, hasForward := r.specs[specKey{consumer.URI, provider.URI, contract.Forward}]
	if !hasForward {
		forward = nil
	}
	reverse, hasReverse := r.specs[specKey{consumer.URI, provider.URI, contract.Reverse}]
	if !hasReverse {
		reverse = nil
	}

	ok := covers(consumer.OutputSchema, provider.InputSchema, forward) &&
		covers(provider.OutputSchema, consumer.InputSchema, reverse)

	log.Debug(log.CatMatch, "compatibility tested",
		"consumer", consumer.URI, "provider", provider.URI, "compatible", ok)

	return ok
}

// covers reports whether transforming source-shaped data can satisfy every
// required field of the destination schema.
//
// With an explicit spec, the destination fields are those produced by field
// mappings whose source field the source schema declares. A spec carrying a
// script is assumed to satisfy the destination; script output cannot be
// determined statically (see contract.test for runtime verification).
// Without a spec, identity mapping requires field-name equality.
func covers(sourceSchema, destSchema json.RawMessage, spec *contract.TransformSpec) bool {
	required := requiredFields(destSchema)
	if len(required) == 0 {
		return true
	}

	if spec != nil && spec.Script != "" {
		return true
	}

	available := propertyNames(sourceSchema)

	produced := make(map[string]bool, len(required))
	if spec != nil {
		for _, m := range spec.FieldMap {
			if available[topLevel(m.Source)] {
				produced[topLevel(m.Dest)] = true
			}
		}
	} else {
		produced = available
	}

	for _, field := range required {
		if !produced[field] {
			return false
		}
	}
	return true
}

// schemaShape is the subset of a JSON Schema the matcher inspects.
type schemaShape struct {
	Properties map[string]json.RawMessage `json:"properties"`
	Required   []string                   `json:"required"`
}

func requiredFields(schema json.RawMessage) []string {
	var s schemaShape
	if err := json.Unmarshal(schema, &s); err != nil {
		return nil
	}
	return s.Required
}

func propertyNames(schema json.RawMessage) map[string]bool {
	var s schemaShape
	if err := json.Unmarshal(schema, &s); err != nil {
		return nil
	}
	names := make(map[string]bool, len(s.Properties))
	for name := range s.Properties {
		names[name] = true
	}
	return names
}

// topLevel returns the first segment of a dot path.
func topLevel(path string) string {
	if i := strings.IndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}
