package workflow

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Registry holds the set of Workflows loaded from a directory of YAML files,
// keyed by Workflow.Name, and refreshes them as files change on disk.
type Registry struct {
	dir string
	log *slog.Logger

	mu        sync.RWMutex
	workflows map[string]*Workflow

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewRegistry loads every *.yaml/*.yml file in dir and starts watching it for
// changes. Callers should call Close when done.
func NewRegistry(dir string, log *slog.Logger) (*Registry, error) {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{dir: dir, log: log, workflows: make(map[string]*Workflow)}

	if err := r.loadAll(); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create workflow watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch workflow dir %q: %w", dir, err)
	}
	r.watcher = watcher
	r.done = make(chan struct{})
	go r.watchLoop()

	return r, nil
}

// Get returns the named Workflow, or false if no such workflow is loaded.
func (r *Registry) Get(name string) (*Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.workflows[name]
	return wf, ok
}

// Names returns the currently loaded workflow names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.workflows))
	for name := range r.workflows {
		names = append(names, name)
	}
	return names
}

// Close stops the filesystem watcher.
func (r *Registry) Close() error {
	if r.watcher == nil {
		return nil
	}
	close(r.done)
	return r.watcher.Close()
}

func (r *Registry) loadAll() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("read workflow dir %q: %w", r.dir, err)
	}

	loaded := make(map[string]*Workflow, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}
		path := filepath.Join(r.dir, entry.Name())
		wf, err := loadWorkflowFile(path)
		if err != nil {
			r.log.Warn("skipping invalid workflow file", "path", path, "error", err)
			continue
		}
		loaded[wf.Name] = wf
	}

	r.mu.Lock()
	r.workflows = loaded
	r.mu.Unlock()
	return nil
}

func (r *Registry) reloadOne(path string) {
	if !isYAML(path) {
		return
	}
	wf, err := loadWorkflowFile(path)
	if err != nil {
		r.log.Warn("failed to reload workflow file", "path", path, "error", err)
		return
	}
	r.mu.Lock()
	r.workflows[wf.Name] = wf
	r.mu.Unlock()
	r.log.Info("reloaded workflow", "name", wf.Name, "path", path)
}

func (r *Registry) watchLoop() {
	for {
		select {
		case <-r.done:
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				r.reloadOne(event.Name)
			}
			if event.Op&fsnotify.Remove != 0 {
				r.removeByPath(event.Name)
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.log.Warn("workflow watcher error", "error", err)
		}
	}
}

func (r *Registry) removeByPath(path string) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, wf := range r.workflows {
		if strings.EqualFold(name, base) {
			delete(r.workflows, name)
			return
		}
		_ = wf
	}
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func loadWorkflowFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var wf Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parse workflow yaml: %w", err)
	}
	if wf.Name == "" {
		return nil, fmt.Errorf("workflow file %q missing name", path)
	}
	if len(wf.Steps) == 0 {
		return nil, fmt.Errorf("workflow %q has no steps", wf.Name)
	}
	return &wf, nil
}
