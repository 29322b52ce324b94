package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/seantiz/prophet/internal/model"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(":memory:", []string{"linear", "forest", "attention"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSeededBackendsUntrained(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	entries, err := r.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("len(entries) = %d, want 3", len(entries))
	}
	for _, e := range entries {
		if e.Trained {
			t.Errorf("backend %s seeded as trained", e.ID)
		}
	}

	missing, err := r.Missing(ctx)
	if err != nil {
		t.Fatalf("Missing: %v", err)
	}
	if len(missing) != 3 {
		t.Errorf("Missing = %v, want all three", missing)
	}
}

func TestPublishMarksTrained(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	metrics := model.Metrics{TrainR2: 0.9, TestR2: 0.85, TestRMSE: 0.4}
	if err := r.Publish(ctx, "linear", "/artifacts/linear.json", metrics); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	e, err := r.Get(ctx, "linear")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !e.Trained {
		t.Error("backend not marked trained after publish")
	}
	if e.ArtifactPath != "/artifacts/linear.json" {
		t.Errorf("artifact path = %q", e.ArtifactPath)
	}
	if e.Metrics == nil || e.Metrics.TestR2 != 0.85 {
		t.Errorf("metrics = %+v, want TestR2 0.85", e.Metrics)
	}
	if e.TrainedAt == nil {
		t.Error("trained_at not set")
	}

	missing, err := r.Missing(ctx)
	if err != nil {
		t.Fatalf("Missing: %v", err)
	}
	if len(missing) != 2 || missing[0] != "attention" || missing[1] != "forest" {
		t.Errorf("Missing = %v, want [attention forest]", missing)
	}

	trained, err := r.Trained(ctx)
	if err != nil {
		t.Fatalf("Trained: %v", err)
	}
	if len(trained) != 1 || trained[0] != "linear" {
		t.Errorf("Trained = %v, want [linear]", trained)
	}
}

func TestUnknownBackend(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	if _, err := r.Get(ctx, "nope"); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Get(nope) = %v, want ErrUnknownBackend", err)
	}
	if err := r.Publish(ctx, "nope", "/x", model.Metrics{}); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("Publish(nope) = %v, want ErrUnknownBackend", err)
	}
}

func TestArtifactSaveLoadRoundTrip(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}

	data := []byte(`{"weights":[1,2,3]}`)
	path, err := store.Save("linear", data)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(path) != "linear.json" {
		t.Errorf("published path = %q", path)
	}

	got, err := store.Load("linear")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Load = %s, want %s", got, data)
	}
}

func TestArtifactSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewArtifactStore(dir)
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}

	if _, err := store.Save("forest", []byte("{}")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file %s left behind after publish", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Errorf("artifact dir has %d entries, want 1", len(entries))
	}
}
