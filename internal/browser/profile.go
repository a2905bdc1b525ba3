package browser

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36 Edg/123.0.0.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
}

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

const profileAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// UserAgentFor picks a user agent for a profile. The same profile always
// presents the same browser.
func UserAgentFor(profileID string) string {
	sum := blake2b.Sum256([]byte(profileID))
	return userAgents[binary.BigEndian.Uint32(sum[:4])%uint32(len(userAgents))]
}

// NewProfileID returns a fresh id like cargurus_20250601_k3x9qa.
func NewProfileID(prefix string, now time.Time, rng *rand.Rand) string {
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = profileAlphabet[rng.Intn(len(profileAlphabet))]
	}
	return fmt.Sprintf("%s_%s_%s", prefix, now.Format("20060102"), suffix)
}

// ProfilePath is the user-data-dir for a profile under root.
func ProfilePath(root, profileID string) string {
	return filepath.Join(root, profileKey(profileID))
}

func profileKey(profileID string) string {
	return unsafePathChars.ReplaceAllString(profileID, "_")
}

// PruneProfiles deletes profile directories under root whose last
// modification is older than maxAge. It returns the removed names. Use it
// only while no crawler runs on root; a running service prunes through
// Manager.PruneProfiles.
func PruneProfiles(root string, maxAge time.Duration, now time.Time) ([]string, error) {
	return pruneProfiles(root, maxAge, now, nil)
}

func pruneProfiles(root string, maxAge time.Duration, now time.Time, lock func(name string) (func(), bool)) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read profile dir: %w", err)
	}

	var removed []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= maxAge {
			continue
		}
		unlock := func() {}
		if lock != nil {
			release, ok := lock(e.Name())
			if !ok {
				continue // in use
			}
			unlock = release
		}
		err = os.RemoveAll(filepath.Join(root, e.Name()))
		unlock()
		if err != nil {
			return removed, fmt.Errorf("failed to remove profile %s: %w", e.Name(), err)
		}
		removed = append(removed, e.Name())
	}
	return removed, nil
}

// SnapshotMeta describes a saved page.
type SnapshotMeta struct {
	Profile   string    `json:"profile"`
	URL       string    `json:"url"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
	Bytes     int       `json:"bytes"`
}

// Snapshot saves the current DOM and a metadata file into dir for later
// inspection. It returns the HTML file path.
func (s *Session) Snapshot(ctx context.Context, dir, reason string) (string, error) {
	html, err := s.HTML(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to read page for snapshot: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	now := time.Now()
	name := strings.ReplaceAll(now.Format("20060102_150405.000"), ".", "_")
	base := filepath.Join(dir, "blocked_page_"+name)
	htmlPath := base + ".html"
	if err := os.WriteFile(htmlPath, []byte(html), 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	meta, err := json.MarshalIndent(SnapshotMeta{
		Profile:   s.ProfileID,
		URL:       s.URL(),
		Reason:    reason,
		Timestamp: now,
		Bytes:     len(html),
	}, "", "  ")
	if err != nil {
		return htmlPath, err
	}
	if err := os.WriteFile(base+"_metadata.json", meta, 0644); err != nil {
		return htmlPath, fmt.Errorf("failed to write snapshot metadata: %w", err)
	}
	return htmlPath, nil
}
