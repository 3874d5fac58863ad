package transform

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/transom-dev/transom/internal/contract"
	"github.com/transom-dev/transom/internal/sandbox"
)

// specMap is a SpecSource backed by a plain map, keyed like the registry.
type specMap map[string]*contract.TransformSpec

func (m specMap) Spec(consumerURI, providerURI string, dir contract.Direction) (*contract.TransformSpec, bool) {
	spec, ok := m[consumerURI+"|"+providerURI+"|"+string(dir)]
	return spec, ok
}

func put(m specMap, consumer, provider string, dir contract.Direction, spec *contract.TransformSpec) {
	m[consumer+"|"+provider+"|"+string(dir)] = spec
}

func dashboardWeatherSpecs() specMap {
	specs := specMap{}
	put(specs, "ui/dashboard/v2", "services/weather/v1", contract.Forward, &contract.TransformSpec{
		FieldMap: []contract.FieldMapping{{Source: "city", Dest: "location"}},
	})
	put(specs, "ui/dashboard/v2", "services/weather/v1", contract.Reverse, &contract.TransformSpec{
		FieldMap: []contract.FieldMapping{
			{Source: "temperature", Dest: "temp"},
			{Source: "humidity", Dest: "humid"},
			{Source: "location", Dest: "city"},
		},
	})
	return specs
}

func newTestEngine(specs specMap) *Engine {
	return NewEngine(specs, sandbox.New(2*time.Second))
}

func TestTransform_ForwardFieldMap(t *testing.T) {
	engine := newTestEngine(dashboardWeatherSpecs())

	got, applied, err := engine.Transform(context.Background(),
		json.RawMessage(`{"city":"Tokyo"}`),
		"ui/dashboard/v2", "services/weather/v1", contract.Forward)
	require.NoError(t, err)
	require.True(t, applied)
	require.JSONEq(t, `{"location":"Tokyo"}`, string(got))
}

func TestTransform_ReverseFieldMap(t *testing.T) {
	engine := newTestEngine(dashboardWeatherSpecs())

	got, applied, err := engine.Transform(context.Background(),
		json.RawMessage(`{"temperature":25.5,"humidity":60,"location":"Tokyo"}`),
		"services/weather/v1", "ui/dashboard/v2", contract.Reverse)
	require.NoError(t, err)
	require.True(t, applied)
	require.JSONEq(t, `{"temp":25.5,"humid":60,"city":"Tokyo"}`, string(got))
}

func TestTransform_NoSpecIsIdentity(t *testing.T) {
	engine := newTestEngine(specMap{})

	input := json.RawMessage(`{"message":"hi"}`)
	got, applied, err := engine.Transform(context.Background(), input,
		"ui/echo/v1", "services/echo/v1", contract.Forward)
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, input, got)
}

func TestTransform_UnmappedFieldsDropped(t *testing.T) {
	engine := newTestEngine(dashboardWeatherSpecs())

	got, _, err := engine.Transform(context.Background(),
		json.RawMessage(`{"city":"Tokyo","units":"metric"}`),
		"ui/dashboard/v2", "services/weather/v1", contract.Forward)
	require.NoError(t, err)
	require.JSONEq(t, `{"location":"Tokyo"}`, string(got))
}

func TestTransform_MissingSourceSkipped(t *testing.T) {
	engine := newTestEngine(dashboardWeatherSpecs())

	got, _, err := engine.Transform(context.Background(),
		json.RawMessage(`{"temperature":25.5}`),
		"services/weather/v1", "ui/dashboard/v2", contract.Reverse)
	require.NoError(t, err)
	require.JSONEq(t, `{"temp":25.5}`, string(got))
}

func TestTransform_DotPaths(t *testing.T) {
	specs := specMap{}
	put(specs, "c", "p", contract.Forward, &contract.TransformSpec{
		FieldMap: []contract.FieldMapping{{Source: "user.address.city", Dest: "location.name"}},
	})
	engine := newTestEngine(specs)

	got, _, err := engine.Transform(context.Background(),
		json.RawMessage(`{"user":{"address":{"city":"Tokyo"}}}`),
		"c", "p", contract.Forward)
	require.NoError(t, err)
	require.JSONEq(t, `{"location":{"name":"Tokyo"}}`, string(got))
}

func TestTransform_DeclarationOrderLastWins(t *testing.T) {
	specs := specMap{}
	put(specs, "c", "p", contract.Forward, &contract.TransformSpec{
		FieldMap: []contract.FieldMapping{
			{Source: "a", Dest: "out"},
			{Source: "b", Dest: "out"},
		},
	})
	engine := newTestEngine(specs)

	got, _, err := engine.Transform(context.Background(),
		json.RawMessage(`{"a":1,"b":2}`), "c", "p", contract.Forward)
	require.NoError(t, err)
	require.JSONEq(t, `{"out":2}`, string(got))
}

func TestTransform_ScriptAfterFieldMap(t *testing.T) {
	specs := specMap{}
	put(specs, "c", "p", contract.Forward, &contract.TransformSpec{
		FieldMap: []contract.FieldMapping{{Source: "celsius", Dest: "c"}},
		Script:   `({fahrenheit: input.c * 9 / 5 + 32})`,
	})
	engine := newTestEngine(specs)

	got, applied, err := engine.Transform(context.Background(),
		json.RawMessage(`{"celsius":100}`), "c", "p", contract.Forward)
	require.NoError(t, err)
	require.True(t, applied)
	require.JSONEq(t, `{"fahrenheit":212}`, string(got))
}

func TestTransform_ScriptErrorPropagates(t *testing.T) {
	specs := specMap{}
	put(specs, "c", "p", contract.Forward, &contract.TransformSpec{
		Script: `throw new Error("nope")`,
	})
	engine := newTestEngine(specs)

	_, _, err := engine.Transform(context.Background(),
		json.RawMessage(`{}`), "c", "p", contract.Forward)
	require.Error(t, err)

	var re *contract.ResourceError
	require.ErrorAs(t, err, &re)
	require.Equal(t, sandbox.MsgScriptError, re.Message)
}

func TestTransform_Deterministic(t *testing.T) {
	engine := newTestEngine(dashboardWeatherSpecs())
	input := json.RawMessage(`{"temperature":25.5,"humidity":60,"location":"Tokyo"}`)

	first, _, err := engine.Transform(context.Background(), input,
		"services/weather/v1", "ui/dashboard/v2", contract.Reverse)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, _, err := engine.Transform(context.Background(), input,
			"services/weather/v1", "ui/dashboard/v2", contract.Reverse)
		require.NoError(t, err)
		require.Equal(t, string(first), string(again))
	}
}

func TestTraceDryRun_FourStepsInOrder(t *testing.T) {
	engine := newTestEngine(dashboardWeatherSpecs())

	trace, err := engine.TraceDryRun(context.Background(),
		json.RawMessage(`{"city":"Tokyo"}`),
		"ui/dashboard/v2", "services/weather/v1")
	require.NoError(t, err)
	require.Len(t, trace.Steps, 4)

	require.Equal(t, contract.StepInput, trace.Steps[0].Step)
	require.JSONEq(t, `{"city":"Tokyo"}`, string(trace.Steps[0].Data))

	require.Equal(t, contract.StepTransformed, trace.Steps[1].Step)
	require.JSONEq(t, `{"location":"Tokyo"}`, string(trace.Steps[1].Data))

	require.Equal(t, contract.StepProviderResponse, trace.Steps[2].Step)
	require.JSONEq(t, `{"location":"Tokyo"}`, string(trace.Steps[2].Data))

	require.Equal(t, contract.StepOutput, trace.Steps[3].Step)
	require.JSONEq(t, `{"city":"Tokyo"}`, string(trace.Steps[3].Data))
}

func TestTraceDryRun_ScriptErrorSurfaces(t *testing.T) {
	specs := specMap{}
	put(specs, "c", "p", contract.Forward, &contract.TransformSpec{Script: `missingFn()`})
	engine := newTestEngine(specs)

	_, err := engine.TraceDryRun(context.Background(), json.RawMessage(`{}`), "c", "p")
	require.Error(t, err)
}
