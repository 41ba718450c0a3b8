package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// reloadDelay debounces bursts of file events into one reload.
const reloadDelay = 500 * time.Millisecond

// decoders turn file contents into a policy, keyed by file extension.
var decoders = map[string]func(path string, data []byte) (*Policy, error){
	".rego": func(path string, data []byte) (*Policy, error) { return parseRegoFile(path, data), nil },
	".json": func(_ string, data []byte) (*Policy, error) { return parseJSONFile(data) },
}

// Loader reads lint rules from .rego and .json files under the workspace
// policy directories. Parsed files are cached by path until they change.
type Loader struct {
	logger zerolog.Logger

	mu    sync.RWMutex
	cache map[string]Policy
}

// NewLoader creates a new policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
		cache:  make(map[string]Policy),
	}
}

// LoadFromPaths loads every policy file named by paths. Directories are
// walked recursively; a path that does not exist is an error.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Policy, error) {
	var loaded []Policy
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("failed to load policies from %s: %w", root, err)
		}

		if !info.IsDir() {
			p, err := l.loadFromFile(ctx, root)
			if err != nil {
				return nil, fmt.Errorf("failed to load policies from %s: %w", root, err)
			}
			loaded = append(loaded, *p)
			continue
		}

		found, err := l.walk(ctx, root)
		if err != nil {
			return nil, fmt.Errorf("failed to load policies from %s: %w", root, err)
		}
		loaded = append(loaded, found...)
	}

	l.logger.Debug().Int("total", len(loaded)).Int("sources", len(paths)).Msg("Policies loaded")
	return loaded, nil
}

// walk collects the policies under dir. Broken files are logged and skipped.
func (l *Loader) walk(ctx context.Context, dir string) ([]Policy, error) {
	var found []Policy
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		case d.IsDir() || !isPolicyFile(path):
			return nil
		}

		p, err := l.loadFromFile(ctx, path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Skipping policy file")
			return nil
		}
		found = append(found, *p)
		return nil
	})
	return found, err
}

func isPolicyFile(path string) bool {
	_, ok := decoders[filepath.Ext(path)]
	return ok
}

// loadFromFile returns the policy in path, from the cache when possible.
// Callers get a copy they may modify.
func (l *Loader) loadFromFile(_ context.Context, path string) (*Policy, error) {
	l.mu.RLock()
	cached, ok := l.cache[path]
	l.mu.RUnlock()
	if ok {
		return &cached, nil
	}

	decode, ok := decoders[filepath.Ext(path)]
	if !ok {
		return nil, fmt.Errorf("unsupported policy file type: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	p, err := decode(path, data)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[path] = *p
	l.mu.Unlock()

	l.logger.Debug().Str("path", path).Str("policy", p.Name).Msg("Policy file parsed")
	return p, nil
}

// forget drops path from the cache.
func (l *Loader) forget(path string) {
	l.mu.Lock()
	delete(l.cache, path)
	l.mu.Unlock()
}

// parseRegoFile turns a .rego file into a policy named after the file. The
// leading comment block is the description, and a "severity: <level>"
// comment line sets the severity (warning when absent).
func parseRegoFile(path string, data []byte) *Policy {
	description, severity := extractHeader(string(data))
	if severity == "" {
		severity = SeverityWarning
	}

	return &Policy{
		Name:        strings.TrimSuffix(filepath.Base(path), ".rego"),
		Description: description,
		Rego:        string(data),
		Severity:    severity,
		Enabled:     true,
		Tags:        []string{},
		Metadata:    map[string]interface{}{"source": path},
		UpdatedAt:   time.Now(),
	}
}

// parseJSONFile decodes a JSON policy definition, which must carry a name.
func parseJSONFile(data []byte) (*Policy, error) {
	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse JSON policy: %w", err)
	}
	if p.Name == "" {
		return nil, errors.New("JSON policy has no name")
	}

	if p.Severity == "" {
		p.Severity = SeverityWarning
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	return &p, nil
}

// extractHeader reads the comment block at the top of a rego file and
// returns its description and severity.
func extractHeader(content string) (string, Severity) {
	var (
		words    []string
		severity Severity
	)

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		comment, ok := strings.CutPrefix(line, "#")
		if !ok {
			break
		}

		comment = strings.TrimSpace(comment)
		if rest, ok := strings.CutPrefix(comment, "severity:"); ok {
			severity = Severity(strings.ToLower(strings.TrimSpace(rest)))
			continue
		}
		if comment != "" && !strings.HasPrefix(comment, "package") {
			words = append(words, comment)
		}
	}

	return strings.Join(words, " "), severity
}

// Watch reloads the policies under paths after each debounced change and
// hands the fresh set to apply. It returns once the watcher is running;
// watching stops when ctx is cancelled.
func (l *Loader) Watch(ctx context.Context, paths []string, apply func([]Policy) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	for _, root := range paths {
		if err := addRecursive(watcher, root); err != nil {
			l.logger.Warn().Err(err).Str("path", root).Msg("Not watching policy path")
		}
	}

	go l.watchLoop(ctx, watcher, paths, apply)

	l.logger.Info().Int("paths", len(paths)).Msg("Watching policy paths")
	return nil
}

// addRecursive watches root, or every directory below it when it is one.
func addRecursive(watcher *fsnotify.Watcher, root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return watcher.Add(root)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		return watcher.Add(path)
	})
}

func (l *Loader) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, paths []string, apply func([]Policy) error) {
	defer watcher.Close()

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

	var pending *time.Timer
	defer func() {
		if pending != nil {
			pending.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&relevant == 0 || !isPolicyFile(event.Name) {
				continue
			}

			l.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("Policy file changed")
			l.forget(event.Name)

			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(reloadDelay, func() {
				if ctx.Err() == nil {
					l.reload(ctx, paths, apply)
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Policy watcher error")
		}
	}
}

func (l *Loader) reload(ctx context.Context, paths []string, apply func([]Policy) error) {
	policies, err := l.LoadFromPaths(ctx, paths)
	if err == nil {
		err = apply(policies)
	}
	if err != nil {
		l.logger.Error().Err(err).Msg("Failed to reload policies")
		return
	}

	l.logger.Info().Int("count", len(policies)).Msg("Policies reloaded")
}

// ClearCache forgets every parsed file so the next load rereads the disk.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache = make(map[string]Policy)
}
