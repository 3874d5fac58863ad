package registry

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/transom-dev/transom/internal/contract"
)

func TestMatchIndex_AddAndLookup(t *testing.T) {
	idx := NewMatchIndex()

	idx.Add("ui/dashboard/v2", "services/weather/v1")
	idx.Add("ui/dashboard/v2", "services/weather/v2")

	require.Equal(t, []string{"services/weather/v1", "services/weather/v2"},
		idx.Providers("ui/dashboard/v2"))
	require.Equal(t, []string{"ui/dashboard/v2"}, idx.Consumers("services/weather/v1"))
	require.Empty(t, idx.Providers("unknown"))
}

func TestMatchIndex_ReturnsCopies(t *testing.T) {
	idx := NewMatchIndex()
	idx.Add("c", "p")

	got := idx.Providers("c")
	got[0] = "mutated"

	require.Equal(t, []string{"p"}, idx.Providers("c"))
}

func TestCovers_NoRequiredFields(t *testing.T) {
	source := json.RawMessage(`{"type":"object","properties":{"a":{}}}`)
	dest := json.RawMessage(`{"type":"object","properties":{"b":{}}}`)

	require.True(t, covers(source, dest, nil))
}

func TestCovers_IdentityFieldNameEquality(t *testing.T) {
	source := json.RawMessage(`{"type":"object","properties":{"message":{},"extra":{}}}`)
	dest := json.RawMessage(`{"type":"object","properties":{"message":{}},"required":["message"]}`)

	require.True(t, covers(source, dest, nil))

	mismatched := json.RawMessage(`{"type":"object","properties":{"city":{}}}`)
	require.False(t, covers(mismatched, dest, nil))
}

func TestCovers_FieldMapProducesRequired(t *testing.T) {
	source := json.RawMessage(`{"type":"object","properties":{"city":{}}}`)
	dest := json.RawMessage(`{"type":"object","properties":{"location":{}},"required":["location"]}`)

	spec := &contract.TransformSpec{
		FieldMap: []contract.FieldMapping{{Source: "city", Dest: "location"}},
	}
	require.True(t, covers(source, dest, spec))

	// Mapping from a field the source schema does not declare produces nothing
	badSpec := &contract.TransformSpec{
		FieldMap: []contract.FieldMapping{{Source: "town", Dest: "location"}},
	}
	require.False(t, covers(source, dest, badSpec))
}

func TestCovers_FieldMapDotPathsUseTopLevel(t *testing.T) {
	source := json.RawMessage(`{"type":"object","properties":{"address":{}}}`)
	dest := json.RawMessage(`{"type":"object","properties":{"location":{}},"required":["location"]}`)

	spec := &contract.TransformSpec{
		FieldMap: []contract.FieldMapping{{Source: "address.city", Dest: "location.name"}},
	}
	require.True(t, covers(source, dest, spec))
}

func TestCovers_ScriptAssumedCompatible(t *testing.T) {
	source := json.RawMessage(`{"type":"object","properties":{"anything":{}}}`)
	dest := json.RawMessage(`{"type":"object","properties":{"location":{}},"required":["location"]}`)

	spec := &contract.TransformSpec{Script: `transform = function(input) { return {location: input.anything}; }`}
	require.True(t, covers(source, dest, spec))
}

func TestCovers_MalformedSchemasFailSafe(t *testing.T) {
	valid := json.RawMessage(`{"type":"object","properties":{"a":{}}}`)
	malformed := json.RawMessage(`"not an object schema"`)

	// Unparseable destination yields no required fields, so anything covers it
	require.True(t, covers(valid, malformed, nil))

	// Unparseable source offers no properties to an identity mapping
	dest := json.RawMessage(`{"type":"object","properties":{"a":{}},"required":["a"]}`)
	require.False(t, covers(malformed, dest, nil))
}
