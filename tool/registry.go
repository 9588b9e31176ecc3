package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Handler executes one function call. The returned value is serialized into
// the response: a map is spread into the result object, anything else lands
// under a "data" key.
type Handler func(ctx context.Context, input map[string]any) (any, error)

// Response is the single, correlated result of one dispatched call. Output
// is a JSON object string of the shape {"success":true,...} or
// {"success":false,"error":"..."}.
type Response struct {
	FunctionCallID string
	Output         string
}

// Registry maps function names to handlers. Registration happens before a
// session starts; dispatch may run concurrently from many goroutines.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	def     Definition
	handler Handler
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

func (r *Registry) Register(name, description string, params Parameters, h Handler) error {
	if name == "" {
		return fmt.Errorf("tool: empty function name")
	}
	if h == nil {
		return fmt.Errorf("tool: nil handler for %q", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{
		def: Definition{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
		handler: h,
	}
	return nil
}

// Definitions returns the registered function definitions sorted by name.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.entries))
	for _, e := range r.entries {
		defs = append(defs, e.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Dispatch runs the named handler and always produces exactly one Response
// carrying the given correlation ID. Unknown names, handler errors and
// handler panics all come back as a structured failure, never as a Go error:
// the remote agent must never be left waiting.
func (r *Registry) Dispatch(ctx context.Context, functionCallID, name string, input map[string]any) Response {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return Response{
			FunctionCallID: functionCallID,
			Output:         failureOutput(fmt.Sprintf("Unknown function: %s", name)),
		}
	}

	res, err := call(ctx, e.handler, input)
	if err != nil {
		return Response{FunctionCallID: functionCallID, Output: failureOutput(err.Error())}
	}
	return Response{FunctionCallID: functionCallID, Output: successOutput(res)}
}

func call(ctx context.Context, h Handler, input map[string]any) (res any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panicked: %v", p)
		}
	}()
	return h(ctx, input)
}

func successOutput(res any) string {
	out := map[string]any{"success": true}
	switch v := res.(type) {
	case nil:
	case map[string]any:
		for k, val := range v {
			if k != "success" {
				out[k] = val
			}
		}
	default:
		out["data"] = v
	}

	data, err := json.Marshal(out)
	if err != nil {
		return failureOutput(fmt.Sprintf("unserializable result: %v", err))
	}
	return string(data)
}

func failureOutput(msg string) string {
	data, _ := json.Marshal(map[string]any{
		"success": false,
		"error":   msg,
	})
	return string(data)
}
