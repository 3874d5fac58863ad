// Package registry stores validated Provider/Consumer contracts and maintains
// the compatibility match index between them.
//
// Registration, transform-spec storage, and match recomputation happen under
// one write lock so concurrent readers never observe a contract without its
// corresponding match index update. Schema I/O happens before the lock is
// taken; lookups at call time are O(1) reads against the index.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/transom-dev/transom/internal/contract"
	"github.com/transom-dev/transom/internal/log"
	"github.com/transom-dev/transom/internal/schemastore"
)

// RegisterRequest carries the contract.register parameters.
// Provider registrations use InputSchemaPath/OutputSchemaPath; Consumer
// registrations use ExpectsInputSchemaPath/ExpectsOutputSchemaPath.
type RegisterRequest struct {
	Type                    string          `json:"type"`
	URI                     string          `json:"uri"`
	InputSchemaPath         string          `json:"inputSchemaPath,omitempty"`
	OutputSchemaPath        string          `json:"outputSchemaPath,omitempty"`
	ExpectsInputSchemaPath  string          `json:"expectsInputSchemaPath,omitempty"`
	ExpectsOutputSchemaPath string          `json:"expectsOutputSchemaPath,omitempty"`
	Endpoint                string          `json:"endpoint,omitempty"`
	Transforms              []TransformDecl `json:"transforms,omitempty"`
}

// TransformDecl declares a transform toward a counterpart contract as part of
// a registration. For a Consumer registration, To names a Provider uri; for a
// Provider registration, To names a Consumer uri.
type TransformDecl struct {
	To        string                  `json:"to"`
	Direction contract.Direction      `json:"direction"`
	FieldMap  []contract.FieldMapping `json:"fieldMap,omitempty"`
	Script    string                  `json:"script,omitempty"`
}

// RegisterResult reports the stored contract and the counterpart uris it
// matched, in registration order.
type RegisterResult struct {
	Contract *contract.Contract
	Matches  []string
}

type specKey struct {
	consumer  string
	provider  string
	direction contract.Direction
}

// Registry is the in-memory contract store plus the derived MatchIndex.
type Registry struct {
	store schemastore.Store

	mu        sync.RWMutex
	contracts map[string]*contract.Contract
	providers []string // provider uris in registration order
	consumers []string // consumer uris in registration order
	specs     map[specKey]*contract.TransformSpec
	index     *MatchIndex
}

// New creates an empty registry loading schemas through store.
func New(store schemastore.Store) *Registry {
	return &Registry{
		store:     store,
		contracts: make(map[string]*contract.Contract),
		specs:     make(map[specKey]*contract.TransformSpec),
		index:     NewMatchIndex(),
	}
}

// Register validates the request, loads and validates its schemas, stores the
// contract, and incrementally recomputes the match index for it.
func (r *Registry) Register(ctx context.Context, req RegisterRequest) (*RegisterResult, error) {
	kind := contract.Kind(req.Type)
	if !kind.Valid() {
		return nil, &contract.ValidationError{Field: "type", Reason: `must be "provider" or "consumer"`}
	}
	if req.URI == "" {
		return nil, contract.NewValidationError("uri")
	}

	inputPath, outputPath, err := schemaPaths(kind, req)
	if err != nil {
		return nil, err
	}

	for _, decl := range req.Transforms {
		if decl.To == "" {
			return nil, contract.NewValidationError("transforms.to")
		}
		if !decl.Direction.Valid() {
			return nil, &contract.ValidationError{Field: "transforms.direction", Reason: `must be "forward" or "reverse"`}
		}
	}

	// Schema I/O happens before the registry lock is taken.
	inputSchema, err := r.store.Load(ctx, inputPath)
	if err != nil {
		return nil, err
	}
	outputSchema, err := r.store.Load(ctx, outputPath)
	if err != nil {
		return nil, err
	}

	c := &contract.Contract{
		URI:          req.URI,
		Kind:         kind,
		InputSchema:  inputSchema,
		OutputSchema: outputSchema,
		Endpoint:     req.Endpoint,
		RegisteredAt: time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.contracts[c.URI]; exists {
		return nil, &contract.ValidationError{Field: "uri", Reason: "is already registered"}
	}

	r.contracts[c.URI] = c
	switch kind {
	case contract.KindProvider:
		r.providers = append(r.providers, c.URI)
	case contract.KindConsumer:
		r.consumers = append(r.consumers, c.URI)
	}

	for _, decl := range req.Transforms {
		spec := specFromDecl(c, decl)
		r.specs[specKey{spec.FromURI, spec.ToURI, spec.Direction}] = spec
	}

	matches := r.recomputeMatches(c)

	log.Info(log.CatRegistry, "contract registered",
		"uri", c.URI, "kind", c.Kind, "matches", len(matches))

	return &RegisterResult{Contract: c, Matches: matches}, nil
}

// recomputeMatches tests the new contract against every existing contract of
// the other kind and writes the results into the index. Caller holds the
// write lock.
func (r *Registry) recomputeMatches(c *contract.Contract) []string {
	var matches []string

	switch c.Kind {
	case contract.KindProvider:
		for _, consumerURI := range r.consumers {
			consumer := r.contracts[consumerURI]
			if r.compatible(consumer, c) {
				r.index.Add(consumerURI, c.URI)
				matches = append(matches, consumerURI)
			}
		}
	case contract.KindConsumer:
		for _, providerURI := range r.providers {
			provider := r.contracts[providerURI]
			if r.compatible(c, provider) {
				r.index.Add(c.URI, providerURI)
				matches = append(matches, providerURI)
			}
		}
	}

	return matches
}

// Get returns the contract registered under uri.
func (r *Registry) Get(uri string) (*contract.Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.contracts[uri]
	if !ok {
		return nil, contract.ErrNotFound
	}
	return c, nil
}

// List returns contracts of the given kind in registration order.
// An empty kind lists everything, providers first.
func (r *Registry) List(kind contract.Kind) []*contract.Contract {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var uris []string
	switch kind {
	case contract.KindProvider:
		uris = r.providers
	case contract.KindConsumer:
		uris = r.consumers
	default:
		uris = append(append([]string{}, r.providers...), r.consumers...)
	}

	out := make([]*contract.Contract, 0, len(uris))
	for _, uri := range uris {
		out = append(out, r.contracts[uri])
	}
	return out
}

// Providers returns the provider uris matched to a consumer, in provider
// registration order. The returned slice is a copy.
func (r *Registry) Providers(consumerURI string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index.Providers(consumerURI)
}

// Consumers returns the consumer uris matched to a provider.
func (r *Registry) Consumers(providerURI string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index.Consumers(providerURI)
}

// Spec returns the transform spec for the ordered (consumer, provider) pair
// and direction, if one was registered.
func (r *Registry) Spec(consumerURI, providerURI string, dir contract.Direction) (*contract.TransformSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[specKey{consumerURI, providerURI, dir}]
	return spec, ok
}

// Counts returns the number of registered providers and consumers.
func (r *Registry) Counts() (providers, consumers int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers), len(r.consumers)
}

// schemaPaths selects the two schema paths a registration must carry,
// reporting the first missing field by its wire name.
func schemaPaths(kind contract.Kind, req RegisterRequest) (input, output string, err error) {
	switch kind {
	case contract.KindProvider:
		if req.InputSchemaPath == "" {
			return "", "", contract.NewValidationError("inputSchemaPath")
		}
		if req.OutputSchemaPath == "" {
			return "", "", contract.NewValidationError("outputSchemaPath")
		}
		return req.InputSchemaPath, req.OutputSchemaPath, nil
	default:
		if req.ExpectsInputSchemaPath == "" {
			return "", "", contract.NewValidationError("expectsInputSchemaPath")
		}
		if req.ExpectsOutputSchemaPath == "" {
			return "", "", contract.NewValidationError("expectsOutputSchemaPath")
		}
		return req.ExpectsInputSchemaPath, req.ExpectsOutputSchemaPath, nil
	}
}

// specFromDecl orients a declared transform onto the ordered
// (consumer, provider) pair regardless of which side registered it.
func specFromDecl(c *contract.Contract, decl TransformDecl) *contract.TransformSpec {
	consumerURI, providerURI := c.URI, decl.To
	if c.Kind == contract.KindProvider {
		consumerURI, providerURI = decl.To, c.URI
	}
	return &contract.TransformSpec{
		FromURI:   consumerURI,
		ToURI:     providerURI,
		Direction: decl.Direction,
		FieldMap:  decl.FieldMap,
		Script:    decl.Script,
	}
}
