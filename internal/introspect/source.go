package introspect

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"refinery/internal/logging"
)

// MissingMarker stands in for a source file that could not be read. A failed
// read never aborts startup; the file simply self-discloses as unavailable.
const MissingMarker = "[SOURCE UNAVAILABLE]"

// DefaultArtifacts is the fixed list of source files the application can
// disclose about itself.
var DefaultArtifacts = []string{
	"cmd/refinery/main.go",
	"cmd/refinery/chat/model.go",
	"internal/protocol/parser.go",
	"internal/protocol/stage.go",
	"internal/protocol/composer.go",
	"internal/protocol/prompts.go",
	"internal/session/model.go",
	"internal/session/store.go",
	"internal/engine/engine.go",
}

// SourceFile is one named artifact and its literal text.
type SourceFile struct {
	Name    string
	Content string
}

// SourceCache holds the application's own source text, loaded once at
// startup.
type SourceCache struct {
	mu    sync.RWMutex
	files []SourceFile
}

// LoadSources reads the named artifacts under root concurrently. Individual
// read failures degrade to MissingMarker.
func LoadSources(ctx context.Context, root string, names []string) *SourceCache {
	cache := &SourceCache{files: make([]SourceFile, len(names))}

	g, ctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			content := MissingMarker
			if data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(name))); err == nil {
				content = string(data)
			} else {
				logging.Introspect("source artifact %s unavailable: %v", name, err)
			}
			cache.mu.Lock()
			cache.files[i] = SourceFile{Name: name, Content: content}
			cache.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	logging.Introspect("loaded %d source artifact(s)", len(names))
	return cache
}

// Files returns the cached artifacts in their fixed order.
func (c *SourceCache) Files() []SourceFile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SourceFile, len(c.files))
	copy(out, c.files)
	return out
}

// Empty reports whether nothing was cached.
func (c *SourceCache) Empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.files) == 0
}
