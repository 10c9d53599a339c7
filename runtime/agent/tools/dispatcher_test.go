package tools_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Atomheart-Father/agentflow/runtime/agent/tools"
)

func TestDispatcherInvokeUnknownTool(t *testing.T) {
	d := tools.NewDispatcher(tools.NewRegistry())
	result := d.Invoke(context.Background(), "missing", nil)
	require.False(t, result.Ok)
	assert.Equal(t, tools.ErrorCodeNotFound, result.Error.Code)
	assert.False(t, result.Error.Retryable)
}

func TestDispatcherInvokeSuccess(t *testing.T) {
	r := tools.NewRegistry()
	require.NoError(t, r.Register(tools.Spec{
		Name:    "echo",
		Payload: tools.TypeSpec{Codec: tools.AnyJSONCodec},
		Invoke: func(args map[string]any) tools.Result {
			return tools.Success("echo", args["value"])
		},
	}))
	d := tools.NewDispatcher(r)

	result := d.Invoke(context.Background(), "echo", map[string]any{"value": "hi"})
	require.True(t, result.Ok)
	assert.Equal(t, "hi", result.Data)
	assert.Equal(t, tools.Ident("echo"), result.Meta.Source)
}

func TestDispatcherSchemaValidationRejectsMissingRequired(t *testing.T) {
	r := tools.NewRegistry()
	require.NoError(t, r.Register(tools.Spec{
		Name: "needs_x",
		Payload: tools.TypeSpec{
			Codec:  tools.AnyJSONCodec,
			Schema: []byte(`{"type":"object","properties":{"x":{"type":"string"}},"required":["x"]}`),
		},
		Invoke: func(args map[string]any) tools.Result {
			return tools.Success("needs_x", nil)
		},
	}))
	d := tools.NewDispatcher(r)

	result := d.Invoke(context.Background(), "needs_x", map[string]any{})
	require.False(t, result.Ok)
	assert.Equal(t, tools.ErrorCodeInvalidInput, result.Error.Code)
}

func TestDispatcherTimeout(t *testing.T) {
	r := tools.NewRegistry()
	require.NoError(t, r.Register(tools.Spec{
		Name:    "slow",
		Timeout: 10 * time.Millisecond,
		Payload: tools.TypeSpec{Codec: tools.AnyJSONCodec},
		Invoke: func(args map[string]any) tools.Result {
			time.Sleep(50 * time.Millisecond)
			return tools.Success("slow", nil)
		},
	}))
	d := tools.NewDispatcher(r)

	result := d.Invoke(context.Background(), "slow", nil)
	require.False(t, result.Ok)
	assert.Equal(t, tools.ErrorCodeInternal, result.Error.Code)
	assert.True(t, result.Error.Retryable)
}

func TestDispatcherRecoversFromPanic(t *testing.T) {
	r := tools.NewRegistry()
	require.NoError(t, r.Register(tools.Spec{
		Name:    "panics",
		Payload: tools.TypeSpec{Codec: tools.AnyJSONCodec},
		Invoke: func(args map[string]any) tools.Result {
			panic("boom")
		},
	}))
	d := tools.NewDispatcher(r)

	result := d.Invoke(context.Background(), "panics", nil)
	require.False(t, result.Ok)
	assert.Equal(t, tools.ErrorCodeInternal, result.Error.Code)
}
