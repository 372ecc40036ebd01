package workflow

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleWorkflowYAML = `
name: deploy
version: "1"
steps:
  - name: build
    type: SHELL
    command: "echo building"
`

func TestNewRegistry_LoadsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, "deploy.yaml", sampleWorkflowYAML)

	reg, err := NewRegistry(dir, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer reg.Close()

	wf, ok := reg.Get("deploy")
	if !ok {
		t.Fatal("expected deploy workflow to be loaded")
	}
	if len(wf.Steps) != 1 || wf.Steps[0].Name != "build" {
		t.Errorf("unexpected steps: %+v", wf.Steps)
	}
}

func TestNewRegistry_SkipsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, "broken.yaml", "name: broken\nsteps: []\n")
	writeWorkflow(t, dir, "ok.yaml", sampleWorkflowYAML)

	reg, err := NewRegistry(dir, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer reg.Close()

	if _, ok := reg.Get("broken"); ok {
		t.Error("expected a workflow with no steps to be skipped")
	}
	if _, ok := reg.Get("deploy"); !ok {
		t.Error("expected valid sibling workflow to still load")
	}
}

func TestRegistry_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeWorkflow(t, dir, "deploy.yaml", sampleWorkflowYAML)

	reg, err := NewRegistry(dir, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	defer reg.Close()

	updated := `
name: deploy
version: "2"
steps:
  - name: build
    type: SHELL
    command: "echo v2"
  - name: test
    type: SHELL
    command: "echo test"
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite workflow file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if wf, ok := reg.Get("deploy"); ok && len(wf.Steps) == 2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("registry did not pick up the updated workflow within the deadline")
}

func writeWorkflow(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
