package tools_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atomheart-Father/agentflow/runtime/agent/tools"
)

func echoSpec(name tools.Ident) tools.Spec {
	return tools.Spec{
		Name:        name,
		Description: "echoes its arguments",
		Payload:     tools.TypeSpec{Name: "EchoArgs", Codec: tools.AnyJSONCodec},
		Invoke: func(args map[string]any) tools.Result {
			return tools.Success(name, args)
		},
	}
}

func TestRegistryRegisterAndFind(t *testing.T) {
	r := tools.NewRegistry()
	require.NoError(t, r.Register(echoSpec("echo")))

	spec, err := r.Find("echo")
	require.NoError(t, err)
	assert.Equal(t, tools.Ident("echo"), spec.Name)

	_, err = r.Find("missing")
	assert.ErrorIs(t, err, tools.ErrNotFound)
}

func TestRegistryRegisterDuplicate(t *testing.T) {
	r := tools.NewRegistry()
	require.NoError(t, r.Register(echoSpec("echo")))
	err := r.Register(echoSpec("echo"))
	assert.ErrorIs(t, err, tools.ErrAlreadyRegistered)
}

func TestRegistryListIsSortedByName(t *testing.T) {
	r := tools.NewRegistry()
	require.NoError(t, r.Register(echoSpec("zeta")))
	require.NoError(t, r.Register(echoSpec("alpha")))

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, tools.Ident("alpha"), list[0].Name)
	assert.Equal(t, tools.Ident("zeta"), list[1].Name)
}

func TestExportLLMSchemaIncludesParameters(t *testing.T) {
	r := tools.NewRegistry()
	spec := echoSpec("echo")
	spec.Payload.Schema = []byte(`{"type":"object","properties":{"x":{"type":"string"}}}`)
	require.NoError(t, r.Register(spec))

	exported := r.ExportLLMSchema()
	require.Len(t, exported, 1)
	assert.Equal(t, "echo", exported[0].Name)
	assert.NotNil(t, exported[0].Parameters)
}
