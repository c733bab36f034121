// Package script runs hint strategies written in JavaScript.
//
// A script defines suggest(ctx) and returns a function string. ctx carries the
// same fields the LLM strategy sees (dx, dy, slope, a, obstacles, feedback,
// ...). Each call gets a fresh sandboxed runtime, so one Strategy can serve
// any number of rooms concurrently.
//
//	suggest = function(ctx) {
//	    if (ctx.feedback && ctx.feedback.length > 0) {
//	        return "{slope}*x+{a}*x*(x-{dx})"
//	    }
//	    return "{slope}*x"
//	}
package script

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dop251/goja"

	"github.com/MJE43/funcwar-server/internal/hint"
)

const defaultCallTimeout = time.Second

var errNoSuggest = errors.New("suggest() function is not defined")

// Strategy is a compiled script.
type Strategy struct {
	name    string
	program *goja.Program
	timeout time.Duration
	log     *log.Logger
}

var _ hint.Strategy = (*Strategy)(nil)

// Compile parses source and checks that it defines suggest().
func Compile(name, source string, logger *log.Logger) (*Strategy, error) {
	if logger == nil {
		logger = log.New(os.Stdout, "[SCRIPT] ", log.LstdFlags)
	}
	prog, err := goja.Compile(name, source, false)
	if err != nil {
		return nil, fmt.Errorf("script: compile %s: %w", name, err)
	}
	s := &Strategy{name: name, program: prog, timeout: defaultCallTimeout, log: logger}

	rt, err := s.newRuntime()
	if err != nil {
		return nil, err
	}
	if _, err := suggestFunc(rt); err != nil {
		return nil, fmt.Errorf("script: %s: %w", name, err)
	}
	return s, nil
}

// Load reads and compiles a script file.
func Load(path string, logger *log.Logger) (*Strategy, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("script: read %s: %w", path, err)
	}
	return Compile(path, string(src), logger)
}

// SetTimeout changes the per-call execution limit.
func (s *Strategy) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Suggest calls suggest(ctx) in a fresh runtime. Runaway scripts are
// interrupted after the call timeout or when ctx is done.
func (s *Strategy) Suggest(ctx context.Context, c hint.Context) (string, error) {
	rt, err := s.newRuntime()
	if err != nil {
		return "", err
	}
	fn, err := suggestFunc(rt)
	if err != nil {
		return "", fmt.Errorf("script: %s: %w", s.name, err)
	}
	arg, err := toJS(rt, c)
	if err != nil {
		return "", err
	}

	timer := time.AfterFunc(s.timeout, func() { rt.Interrupt("script execution timeout") })
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() { rt.Interrupt(ctx.Err()) })
	defer stop()

	out, err := fn(goja.Undefined(), arg)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return "", fmt.Errorf("script: %s timed out: %v", s.name, interrupted.Value())
		}
		return "", fmt.Errorf("script: suggest() error: %w", err)
	}
	if out == nil || goja.IsUndefined(out) || goja.IsNull(out) {
		return "", fmt.Errorf("script: suggest() returned nothing")
	}
	return strings.TrimSpace(out.String()), nil
}

// newRuntime builds a sandboxed runtime and runs the script's top level.
func (s *Strategy) newRuntime() (*goja.Runtime, error) {
	rt := goja.New()

	rt.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		s.log.Printf("%s: %s", s.name, strings.Join(parts, " "))
		return goja.Undefined()
	})
	console := rt.NewObject()
	console.Set("log", rt.Get("log"))
	rt.Set("console", console)

	// num(v) formats a number the way template placeholders are filled.
	rt.Set("num", func(v float64) string { return hint.Number(v) })

	rt.Set("require", goja.Undefined())
	rt.Set("eval", goja.Undefined())
	rt.Set("Function", goja.Undefined())

	timer := time.AfterFunc(s.timeout, func() { rt.Interrupt("script init timeout") })
	_, err := rt.RunProgram(s.program)
	timer.Stop()
	if err != nil {
		return nil, fmt.Errorf("script: run %s: %w", s.name, err)
	}
	rt.ClearInterrupt()
	return rt, nil
}

func suggestFunc(rt *goja.Runtime) (goja.Callable, error) {
	v := rt.Get("suggest")
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, errNoSuggest
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, fmt.Errorf("suggest is not a function")
	}
	return fn, nil
}

// toJS hands the context over as plain JS objects, keyed by json tags.
func toJS(rt *goja.Runtime, c hint.Context) (goja.Value, error) {
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("script: marshal context: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("script: unmarshal context: %w", err)
	}
	return rt.ToValue(m), nil
}
