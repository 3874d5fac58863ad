// Package schemastore resolves schema path strings to validated JSON Schema
// documents. Contracts reference their schemas by file path; the store reads
// the file, checks it is valid JSON, and validates it against the JSON Schema
// meta-schema before handing the bytes to the registry.
//
// Loads go through a TTL cache so repeated registrations of contracts sharing
// schema files do not reread disk; a file watcher invalidates cached entries
// when schema files change.
package schemastore

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/transom-dev/transom/internal/cachemanager"
	"github.com/transom-dev/transom/internal/contract"
	"github.com/transom-dev/transom/internal/log"
)

// Stable failure messages surfaced through the error taxonomy.
const (
	MsgFileNotFound      = "Schema file not found"
	MsgInvalidJSON       = "Invalid JSON"
	MsgInvalidJSONSchema = "Invalid JSON Schema"
)

const cacheTTL = 5 * time.Minute

// Store resolves a schema path to validated schema bytes.
type Store interface {
	Load(ctx context.Context, path string) (json.RawMessage, error)
}

// FileStore loads schemas from the filesystem, resolving relative paths
// against a base directory.
type FileStore struct {
	baseDir string
	cache   *cachemanager.ReadThroughCache[string, json.RawMessage, string]
	manager cachemanager.CacheManager[string, json.RawMessage]
}

// NewFileStore creates a store rooted at baseDir. An empty baseDir resolves
// relative paths against the working directory.
func NewFileStore(baseDir string) *FileStore {
	manager := cachemanager.NewInMemoryCacheManager[string, json.RawMessage](
		"schemas", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval)

	s := &FileStore{baseDir: baseDir, manager: manager}
	s.cache = cachemanager.NewReadThroughCache[string, json.RawMessage, string](
		manager, s.loadAndValidate, false)
	return s
}

// Load resolves path, reads the schema file, and validates it.
// Failure modes map onto the broker's resource taxonomy:
// unreadable file, malformed JSON, or a document that is not a valid
// JSON Schema each produce a contract.ResourceError with a stable message.
func (s *FileStore) Load(ctx context.Context, path string) (json.RawMessage, error) {
	resolved := s.resolve(path)
	return s.cache.Get(ctx, resolved, resolved, cacheTTL)
}

// Invalidate drops the cached schema for path, if any.
func (s *FileStore) Invalidate(path string) {
	s.cache.Invalidate(context.Background(), s.resolve(path))
}

// InvalidateAll drops every cached schema. Called by the file watcher when
// anything under the schema directory changes.
func (s *FileStore) InvalidateAll() {
	s.manager.Flush(context.Background())
	log.Debug(log.CatStore, "schema cache flushed")
}

// BaseDir returns the directory relative paths resolve against.
func (s *FileStore) BaseDir() string { return s.baseDir }

func (s *FileStore) resolve(path string) string {
	if filepath.IsAbs(path) || s.baseDir == "" {
		return filepath.Clean(path)
	}
	return filepath.Join(s.baseDir, path)
}

func (s *FileStore) loadAndValidate(_ context.Context, resolved string) (json.RawMessage, error) {
	data, err := os.ReadFile(resolved) //nolint:gosec // G304: path comes from an operator-registered contract
	if err != nil {
		log.Warn(log.CatStore, "schema file unreadable", "path", resolved)
		return nil, contract.NewResourceError(MsgFileNotFound, resolved)
	}

	if !json.Valid(data) {
		return nil, contract.NewResourceError(MsgInvalidJSON, resolved)
	}

	if err := validateMetaSchema(resolved, data); err != nil {
		return nil, contract.WrapResourceError(MsgInvalidJSONSchema, err)
	}

	log.Debug(log.CatStore, "schema loaded", "path", resolved, "bytes", len(data))

	return json.RawMessage(data), nil
}

// validateMetaSchema checks that data is a structurally valid JSON Schema by
// compiling it. The compiler validates the document against the meta-schema
// of its declared (or default) draft.
func validateMetaSchema(name string, data []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
		return err
	}
	if _, err := compiler.Compile(name); err != nil {
		return err
	}
	return nil
}
