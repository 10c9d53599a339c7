package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// DefaultTimeout is applied to a tool invocation when the spec does not
// declare its own Timeout.
const DefaultTimeout = 10 * time.Second

// Dispatcher invokes tools found in a Registry, enforcing per-tool timeouts
// and JSON Schema validation and translating panics or deadline overruns into
// a well-formed Result instead of propagating them to the caller.
type Dispatcher struct {
	registry *Registry
	schemas  map[Ident]*jsonschema.Schema
}

// NewDispatcher builds a Dispatcher over registry, pre-compiling every tool's
// declared JSON Schema so Invoke does not pay compilation cost per call.
// Tools whose schema fails to compile are registered without validation and
// the compile error is swallowed; a correctly authored schema is a build-time
// concern, not something end users should see as a runtime failure.
func NewDispatcher(registry *Registry) *Dispatcher {
	d := &Dispatcher{registry: registry, schemas: make(map[Ident]*jsonschema.Schema)}
	for _, spec := range registry.List() {
		if len(spec.Payload.Schema) == 0 {
			continue
		}
		compiler := jsonschema.NewCompiler()
		url := "mem://" + string(spec.Name) + ".json"
		var doc any
		if err := json.Unmarshal(spec.Payload.Schema, &doc); err != nil {
			continue
		}
		if err := compiler.AddResource(url, doc); err != nil {
			continue
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			continue
		}
		d.schemas[spec.Name] = schema
	}
	return d
}

// Invoke dispatches a tool call by name. It never returns an error: every
// failure mode (not found, schema violation, timeout, panic) is translated
// into a Result with Ok=false so the Executor can treat every call uniformly.
func (d *Dispatcher) Invoke(ctx context.Context, name Ident, args map[string]any) Result {
	spec, err := d.registry.Find(name)
	if err != nil {
		return Failed(name, ErrorCodeNotFound, fmt.Sprintf("unknown tool %q", name))
	}

	if schema, ok := d.schemas[name]; ok {
		if err := validateArgs(schema, args); err != nil {
			return Failed(name, ErrorCodeInvalidInput, err.Error()).WithParams(args)
		}
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		result Result
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{Failed(name, ErrorCodeInternal, fmt.Sprintf("tool panic: %v", r))}
			}
		}()
		done <- outcome{spec.Invoke(args)}
	}()

	select {
	case o := <-done:
		return o.result.WithLatency(time.Since(start)).WithParams(args)
	case <-callCtx.Done():
		return Failed(name, ErrorCodeInternal, "tool invocation timed out").
			withRetryable(true).
			WithLatency(time.Since(start)).
			WithParams(args)
	}
}

// withRetryable overrides the Retryable flag on a Failure; used for the
// timeout path, which is conventionally retryable even though its code is
// INTERNAL.
func (r Result) withRetryable(retryable bool) Result {
	if r.Error != nil {
		r.Error.Retryable = retryable
	}
	return r
}

func validateArgs(schema *jsonschema.Schema, args map[string]any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("argument validation: %w", err)
	}
	return nil
}
