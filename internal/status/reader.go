package status

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// WorkspacePath is the preferred location of the store relative to the
// working directory.
const WorkspacePath = ".helix/notices.yaml"

// RootPath is the fallback location at the working directory root.
const RootPath = "helix-notices.yaml"

// PathEnvVar overrides every other way of locating the store.
const PathEnvVar = "HELIX_NOTICES_PATH"

// NoticePaths lists the paths to search (in priority order) when
// auto-discovering the store.
var NoticePaths = []string{
	WorkspacePath,
	RootPath,
}

// ErrNoticeNotFound is returned when the store has no notice for a client.
var ErrNoticeNotFound = errors.New("notice not found")

// ResolvePath discovers the store location.
//
// Resolution order:
//  1. HELIX_NOTICES_PATH environment variable (used as-is if set)
//  2. Explicit noticePath parameter (if non-empty)
//  3. Auto-discovery: tries the workspace path, then the root path under basePath
//  4. Falls back to the workspace path (will error on read if it doesn't exist)
func ResolvePath(basePath, noticePath string) string {
	if envPath := os.Getenv(PathEnvVar); envPath != "" {
		return envPath
	}

	if noticePath != "" {
		return noticePath
	}

	for _, p := range NoticePaths {
		fullPath := filepath.Join(basePath, p)
		if _, err := os.Stat(fullPath); err == nil {
			return fullPath
		}
	}

	return filepath.Join(basePath, WorkspacePath)
}

// Reader reads notices from the store file.
type Reader struct {
	noticePath string
}

// NewReader creates a [Reader] that auto-discovers the store under basePath.
func NewReader(basePath string) *Reader {
	return &Reader{
		noticePath: ResolvePath(basePath, ""),
	}
}

// NewReaderWithPath creates a [Reader] for an explicit store path.
// HELIX_NOTICES_PATH still takes priority if set.
func NewReaderWithPath(basePath, noticePath string) *Reader {
	return &Reader{
		noticePath: ResolvePath(basePath, noticePath),
	}
}

// Path returns the resolved store path.
func (r *Reader) Path() string {
	return r.noticePath
}

// Read reads and parses the whole store.
func (r *Reader) Read() (*NoticeFile, error) {
	return readNoticeFile(r.noticePath)
}

// GetNotice returns the notice for a client.
func (r *Reader) GetNotice(clientID string) (*Notice, error) {
	file, err := r.Read()
	if err != nil {
		return nil, err
	}

	notice, ok := file.Notices[clientID]
	if !ok || notice == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoticeNotFound, clientID)
	}
	return notice, nil
}

// GetNoticeStatus returns the status of a client's notice.
func (r *Reader) GetNoticeStatus(clientID string) (Status, error) {
	notice, err := r.GetNotice(clientID)
	if err != nil {
		return "", err
	}
	return notice.Status, nil
}

// ListClients returns every client ID in the store, sorted.
func (r *Reader) ListClients() ([]string, error) {
	file, err := r.Read()
	if err != nil {
		return nil, err
	}

	clients := make([]string, 0, len(file.Notices))
	for id := range file.Notices {
		clients = append(clients, id)
	}
	sort.Strings(clients)
	return clients, nil
}

func readNoticeFile(path string) (*NoticeFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read notices: %w", err)
	}

	var file NoticeFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse notices: %w", err)
	}
	if file.Notices == nil {
		file.Notices = make(map[string]*Notice)
	}

	for id, notice := range file.Notices {
		if notice == nil {
			continue
		}
		if notice.Status == "" {
			notice.Status = StatusPending
		}
		if !notice.Status.IsValid() {
			return nil, fmt.Errorf("failed to parse notices: client %s has invalid status %q", id, notice.Status)
		}
	}

	return &file, nil
}
