package engine

import (
	"bytes"
	"context"
	"testing"
)

type fakeEngine struct {
	running bool
	local   map[string]bool
	pulled  []string
}

func (f *fakeEngine) Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error) {
	return "", nil
}

func (f *fakeEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return nil, nil
}

func (f *fakeEngine) IsRunning(ctx context.Context) bool { return f.running }

func (f *fakeEngine) HasModel(ctx context.Context, name string) bool { return f.local[name] }

func (f *fakeEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	f.pulled = append(f.pulled, name)
	if onProgress != nil {
		onProgress(PullProgress{Status: "downloading", Total: 100, Completed: 100})
	}
	return nil
}

func TestEnsureReady_PullsMissingModels(t *testing.T) {
	f := &fakeEngine{running: true, local: map[string]bool{"mistral": true}}
	var out bytes.Buffer

	if err := EnsureReady(context.Background(), f, "mistral", "nomic-embed-text", &out); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(f.pulled) != 1 || f.pulled[0] != "nomic-embed-text" {
		t.Errorf("pulled = %v, want [nomic-embed-text]", f.pulled)
	}
}

func TestEnsureReady_EngineDown(t *testing.T) {
	f := &fakeEngine{running: false}
	var out bytes.Buffer

	if err := EnsureReady(context.Background(), f, "mistral", "nomic-embed-text", &out); err == nil {
		t.Fatal("EnsureReady succeeded with the engine down")
	}
}

func TestEnsureReady_SameModelCheckedOnce(t *testing.T) {
	f := &fakeEngine{running: true, local: map[string]bool{}}
	var out bytes.Buffer

	if err := EnsureReady(context.Background(), f, "mistral", "mistral", &out); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(f.pulled) != 1 {
		t.Errorf("pulled %d times, want 1", len(f.pulled))
	}
}
