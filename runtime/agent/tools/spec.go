// Package tools defines the uniform tool contract shared by the Planner and
// the Executor: tool metadata, JSON codecs, the tool result envelope, and the
// in-memory Registry/Dispatcher that exposes both to the rest of the runtime.
package tools

import (
	"encoding/json"
	"time"
)

// AnyJSONCodec is a pre-built codec for the `any` type. It uses standard JSON
// marshaling/unmarshaling and is suitable for tools whose concrete payload
// type is not known at compile time.
var AnyJSONCodec = JSONCodec[any]{
	ToJSON: json.Marshal,
	FromJSON: func(data []byte) (any, error) {
		if len(data) == 0 {
			return nil, nil
		}
		var out any
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	},
}

type (
	// JSONCodec serializes and deserializes strongly typed values to and from JSON.
	JSONCodec[T any] struct {
		// ToJSON encodes the value into canonical JSON.
		ToJSON func(T) ([]byte, error)
		// FromJSON decodes the JSON payload into the typed value.
		FromJSON func([]byte) (T, error)
	}

	// TypeSpec describes the payload schema for a tool.
	TypeSpec struct {
		// Name is the Go identifier associated with the type.
		Name string
		// Schema contains the JSON Schema (draft 2020-12) definition used to
		// validate arguments before dispatch and to render the export for the
		// LLM tool-calling API.
		Schema []byte
		// Codec serializes and deserializes values matching the type.
		Codec JSONCodec[any]
	}

	// Spec enumerates the metadata a tool must declare to be registered.
	Spec struct {
		// Name is the globally unique tool identifier.
		Name Ident
		// Description provides human-readable context for planners.
		Description string
		// Timeout bounds how long Dispatcher.Invoke waits before returning an
		// INTERNAL, retryable ToolResult. Zero means DefaultTimeout applies.
		Timeout time.Duration
		// Payload describes the request schema for the tool.
		Payload TypeSpec
		// Invoke performs the tool's side effect and returns a Result. It must
		// never panic; the Dispatcher recovers defensively, but a well-behaved
		// tool reports failures through the Result envelope instead.
		Invoke func(args map[string]any) Result
	}
)
