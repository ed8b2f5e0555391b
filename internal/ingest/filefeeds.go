package ingest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 300 * time.Millisecond

// FileFeeds is a feed list kept in a text file, one URL per line. Blank
// lines and lines starting with # are skipped.
type FileFeeds struct {
	path string
	log  *zap.Logger

	mu    sync.RWMutex
	feeds []string
}

func LoadFileFeeds(path string, log *zap.Logger) (*FileFeeds, error) {
	if log == nil {
		log = zap.NewNop()
	}
	f := &FileFeeds{path: path, log: log.Named("feeds-file")}
	if err := f.reload(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *FileFeeds) GetFeeds(context.Context) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string{}, f.feeds...), nil
}

// Watch reloads the list whenever the file changes, until ctx is done. The
// directory is watched so editors that replace the file are picked up. A
// file that fails to load keeps the previous list.
func (f *FileFeeds) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("watch %s: %w", f.path, err)
	}

	name := filepath.Clean(f.path)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != name || event.Op == fsnotify.Chmod {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				if err := f.reload(); err != nil {
					f.log.Warn("reload failed, keeping previous list", zap.Error(err))
				}
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.log.Warn("watcher error", zap.Error(err))
		}
	}
}

func (f *FileFeeds) reload() error {
	file, err := os.Open(f.path)
	if err != nil {
		return err
	}
	defer file.Close()

	feeds, err := parseFeeds(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", f.path, err)
	}

	f.mu.Lock()
	f.feeds = feeds
	f.mu.Unlock()

	f.log.Info("feeds loaded", zap.String("path", f.path), zap.Int("count", len(feeds)))
	return nil
}

func parseFeeds(r io.Reader) ([]string, error) {
	feeds := []string{}
	seen := map[string]bool{}

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || seen[line] {
			continue
		}
		seen[line] = true
		feeds = append(feeds, line)
	}
	return feeds, sc.Err()
}
