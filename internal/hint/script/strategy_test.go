package script

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MJE43/funcwar-server/internal/hint"
)

var quiet = log.New(io.Discard, "", 0)

func TestSuggestUsesContext(t *testing.T) {
	s, err := Compile("aim.js", `
		suggest = function(ctx) {
			if (ctx.feedback && ctx.feedback.length > 0) {
				return num(ctx.slope) + "*x+" + num(ctx.a) + "*x*(x-" + num(ctx.dx) + ")"
			}
			return "{slope}*x"
		}
	`, quiet)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	c := hint.Context{Mode: "normal", DX: 10, DY: 4, Slope: 0.4, Curvature: -0.1}
	got, err := s.Suggest(context.Background(), c)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if got != "{slope}*x" {
		t.Errorf("expected template, got %q", got)
	}

	c.Feedback = []hint.Feedback{{Candidate: "{slope}*x", Reason: "missed the target"}}
	got, err = s.Suggest(context.Background(), c)
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if got != "0.4*x+(-0.1)*x*(x-10)" {
		t.Errorf("unexpected answer %q", got)
	}
}

func TestCompileErrors(t *testing.T) {
	if _, err := Compile("bad.js", "suggest = function( {", quiet); err == nil {
		t.Error("expected syntax error")
	}
	_, err := Compile("empty.js", "var x = 1", quiet)
	if !errors.Is(err, errNoSuggest) {
		t.Errorf("expected errNoSuggest, got %v", err)
	}
	if _, err := Compile("num.js", "suggest = 3", quiet); err == nil {
		t.Error("expected error for non-function suggest")
	}
}

func TestSuggestTimeout(t *testing.T) {
	s, err := Compile("loop.js", `suggest = function(ctx) { while (true) {} }`, quiet)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	s.SetTimeout(50 * time.Millisecond)

	start := time.Now()
	_, err = s.Suggest(context.Background(), hint.Context{})
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("interrupt took too long: %v", time.Since(start))
	}
}

func TestSuggestCanceledContext(t *testing.T) {
	s, err := Compile("loop.js", `suggest = function(ctx) { while (true) {} }`, quiet)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	s.SetTimeout(time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := s.Suggest(ctx, hint.Context{}); err == nil {
		t.Fatal("expected error after context cancel")
	}
}

func TestSuggestReturnsNothing(t *testing.T) {
	s, err := Compile("nil.js", `suggest = function(ctx) { return null }`, quiet)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := s.Suggest(context.Background(), hint.Context{}); err == nil {
		t.Error("expected error for null result")
	}
}

func TestSandbox(t *testing.T) {
	s, err := Compile("sandbox.js", `
		suggest = function(ctx) {
			if (typeof require !== "undefined" || typeof eval !== "undefined") {
				return "leak"
			}
			return "0"
		}
	`, quiet)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	got, err := s.Suggest(context.Background(), hint.Context{})
	if err != nil || got != "0" {
		t.Errorf("got %q, %v", got, err)
	}
}

func TestConcurrentSuggest(t *testing.T) {
	s, err := Compile("count.js", `
		var calls = 0
		suggest = function(ctx) { calls++; return num(ctx.dx + calls) }
	`, quiet)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.Suggest(context.Background(), hint.Context{DX: 2})
			if err != nil || got != "3" {
				t.Errorf("got %q, %v", got, err)
			}
		}()
	}
	wg.Wait()
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hint.js")
	if err := os.WriteFile(path, []byte(`suggest = function() { return "x" }`), 0o600); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path, quiet)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got, _ := s.Suggest(context.Background(), hint.Context{}); got != "x" {
		t.Errorf("expected x, got %q", got)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.js"), quiet); err == nil {
		t.Error("expected error for missing file")
	}
}
