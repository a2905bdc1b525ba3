package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	DeadLinksFileName = "dead_links.json"
	DeadLinkExpiry    = 30 * 24 * time.Hour
)

// DeadLinks remembers listing links that no longer resolve so later crawls
// can skip them.
type DeadLinks interface {
	IsDead(ctx context.Context, link string) bool
	MarkDead(ctx context.Context, links ...string) error
	Remove(ctx context.Context, links ...string) error
	List(ctx context.Context) ([]string, error)
}

// DeadLink is one remembered link.
type DeadLink struct {
	URL      string    `json:"url"`
	MarkedAt time.Time `json:"marked_at"`
}

type deadLinkFile struct {
	Timestamp time.Time  `json:"timestamp"`
	Count     int        `json:"count"`
	DeadLinks []DeadLink `json:"dead_links"`
}

// FileStore keeps dead links in a JSON file. Entries older than the expiry
// are ignored and dropped on the next write.
type FileStore struct {
	path   string
	expiry time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]time.Time
	loaded  bool
}

// NewFileStore stores dead links in dir/dead_links.json.
func NewFileStore(dir string, expiry time.Duration, logger *slog.Logger) *FileStore {
	if expiry <= 0 {
		expiry = DeadLinkExpiry
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		path:   filepath.Join(dir, DeadLinksFileName),
		expiry: expiry,
		now:    time.Now,
		logger: logger,
	}
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

// IsDead reports whether link was marked dead and has not expired. An empty
// link counts as dead.
func (s *FileStore) IsDead(ctx context.Context, link string) bool {
	link = strings.TrimSpace(link)
	if link == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
	marked, ok := s.entries[link]
	return ok && s.now().Sub(marked) <= s.expiry
}

// MarkDead records links and persists the set.
func (s *FileStore) MarkDead(ctx context.Context, links ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
	now := s.now()
	changed := false
	for _, l := range links {
		if l = strings.TrimSpace(l); l != "" {
			s.entries[l] = now
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.save()
}

// Remove forgets links and persists the set.
func (s *FileStore) Remove(ctx context.Context, links ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
	for _, l := range links {
		delete(s.entries, strings.TrimSpace(l))
	}
	return s.save()
}

// List returns live dead links, sorted.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.load()
	now := s.now()
	out := make([]string, 0, len(s.entries))
	for l, marked := range s.entries {
		if now.Sub(marked) <= s.expiry {
			out = append(out, l)
		}
	}
	sort.Strings(out)
	return out, nil
}

// load reads the file once. A missing or corrupt file is an empty set.
func (s *FileStore) load() {
	if s.loaded {
		return
	}
	s.loaded = true
	s.entries = make(map[string]time.Time)

	file, err := os.Open(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("dead link file unreadable", slog.String("path", s.path), slog.String("error", err.Error()))
		}
		return
	}
	defer file.Close()

	var data deadLinkFile
	if err := json.NewDecoder(file).Decode(&data); err != nil {
		s.logger.Warn("dead link file corrupt, starting empty", slog.String("path", s.path), slog.String("error", err.Error()))
		return
	}
	for _, d := range data.DeadLinks {
		if d.URL != "" {
			s.entries[d.URL] = d.MarkedAt
		}
	}
}

func (s *FileStore) save() error {
	now := s.now()
	data := deadLinkFile{Timestamp: now}
	for l, marked := range s.entries {
		if now.Sub(marked) > s.expiry {
			delete(s.entries, l)
			continue
		}
		data.DeadLinks = append(data.DeadLinks, DeadLink{URL: l, MarkedAt: marked})
	}
	sort.Slice(data.DeadLinks, func(i, j int) bool { return data.DeadLinks[i].URL < data.DeadLinks[j].URL })
	data.Count = len(data.DeadLinks)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	tmp := s.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create dead link file: %w", err)
	}
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode dead links: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to write dead link file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace dead link file: %w", err)
	}
	s.logger.Debug("dead links saved", slog.Int("count", data.Count), slog.String("path", s.path))
	return nil
}
