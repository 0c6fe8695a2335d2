package gridfile

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
)

// Handler turns decoded task arguments into an executable body. Argument
// validation happens here, at build time, so a bad grid file fails before
// anything runs.
type Handler func(args map[string]cty.Value) (func() error, error)

// Registry maps handler names to their factories for a single build.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler name. Re-registering a name replaces it.
func (r *Registry) Register(name string, h Handler) {
	r.handlers[name] = h
}

// Lookup returns the handler bound to name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Builtins returns a registry with the handlers the demo runner ships:
// noop, sleep (args: ms), and print (args: message).
func Builtins() *Registry {
	r := NewRegistry()
	r.Register("noop", func(args map[string]cty.Value) (func() error, error) {
		return func() error { return nil }, nil
	})
	r.Register("sleep", func(args map[string]cty.Value) (func() error, error) {
		ms, err := intArg(args, "ms")
		if err != nil {
			return nil, err
		}
		return func() error {
			time.Sleep(time.Duration(ms) * time.Millisecond)
			return nil
		}, nil
	})
	r.Register("print", func(args map[string]cty.Value) (func() error, error) {
		message, err := stringArg(args, "message")
		if err != nil {
			return nil, err
		}
		return func() error {
			slog.Info(message)
			return nil
		}, nil
	})
	return r
}

func intArg(args map[string]cty.Value, name string) (int64, error) {
	val, ok := args[name]
	if !ok {
		return 0, fmt.Errorf("gridfile: missing required argument %q", name)
	}
	val, err := convert.Convert(val, cty.Number)
	if err != nil {
		return 0, fmt.Errorf("gridfile: argument %q: %w", name, err)
	}
	var out int64
	if err := gocty.FromCtyValue(val, &out); err != nil {
		return 0, fmt.Errorf("gridfile: argument %q: %w", name, err)
	}
	return out, nil
}

func stringArg(args map[string]cty.Value, name string) (string, error) {
	val, ok := args[name]
	if !ok {
		return "", fmt.Errorf("gridfile: missing required argument %q", name)
	}
	val, err := convert.Convert(val, cty.String)
	if err != nil {
		return "", fmt.Errorf("gridfile: argument %q: %w", name, err)
	}
	var out string
	if err := gocty.FromCtyValue(val, &out); err != nil {
		return "", fmt.Errorf("gridfile: argument %q: %w", name, err)
	}
	return out, nil
}
