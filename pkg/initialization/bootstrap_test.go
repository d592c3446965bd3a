package initialization

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"streamhub/pkg/config"
	"streamhub/pkg/persistence"
)

func TestBuildPersistsRegistry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"org.boot","name":"Boot","version":"1.0.0","resources":["stream"],"types":["movie"]}`)
	}))
	defer srv.Close()

	statePath := filepath.Join(t.TempDir(), "state.json")
	state, err := persistence.Open(statePath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	comp, err := Build(config.Default(), state)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if comp.State.Path() != statePath {
		t.Errorf("state path = %q, want %q", comp.State.Path(), statePath)
	}
	if _, err := comp.Engine.InstallAddon(context.Background(), srv.URL, false); err != nil {
		t.Fatalf("InstallAddon: %v", err)
	}

	reopened, err := persistence.Open(statePath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	again, err := Build(config.Default(), reopened)
	if err != nil {
		t.Fatalf("second Build: %v", err)
	}
	if _, ok := again.Registry.Snapshot().Lookup("org.boot"); !ok {
		t.Error("installed addon not restored from state file")
	}

	families, err := again.Metrics.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Error("metrics registry is empty")
	}
}
