// Package backup snapshots the database file with VACUUM INTO, keeps a
// bounded number of local copies and optionally ships each one to an
// S3-compatible bucket.
package backup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tgienger/devdesk/internal/db"
	apperrors "github.com/tgienger/devdesk/internal/errors"
)

const (
	filePrefix = "devdesk-"
	fileSuffix = ".db"
	stampFmt   = "20060102-150405.000"
)

// Info describes one backup file.
type Info struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	Uploaded  bool      `json:"uploaded"`
}

// Uploader copies a finished backup off the machine.
type Uploader interface {
	Upload(ctx context.Context, path, name string) error
}

// Options configures a Manager.
type Options struct {
	Dir      string
	Keep     int
	Uploader Uploader // nil disables uploads
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Manager creates, lists and prunes backups of one database.
type Manager struct {
	db       *db.DB
	dir      string
	keep     int
	uploader Uploader
	logger   *slog.Logger
	clock    func() time.Time
}

// NewManager creates a Manager for d.
func NewManager(d *db.DB, opts Options) *Manager {
	m := &Manager{
		db:       d,
		dir:      opts.Dir,
		keep:     opts.Keep,
		uploader: opts.Uploader,
		logger:   opts.Logger,
		clock:    opts.Clock,
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	if m.keep < 1 {
		m.keep = 1
	}
	return m
}

// Dir returns the backup directory.
func (m *Manager) Dir() string { return m.dir }

// Create writes a consistent copy of the database, prunes old copies and
// uploads the new one when an uploader is configured. An upload failure is
// returned together with the local backup, which is kept.
func (m *Manager) Create(ctx context.Context) (Info, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return Info{}, fmt.Errorf("create backup directory: %w", err)
	}

	now := m.clock().UTC()
	name := filePrefix + now.Format(stampFmt) + fileSuffix
	path := filepath.Join(m.dir, name)
	for i := 1; fileExists(path); i++ {
		name = fmt.Sprintf("%s%s-%d%s", filePrefix, now.Format(stampFmt), i, fileSuffix)
		path = filepath.Join(m.dir, name)
	}

	start := time.Now()
	if _, err := m.db.Exec(ctx, `VACUUM INTO ?`, path); err != nil {
		return Info{}, fmt.Errorf("vacuum into %s: %w", path, err)
	}
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("stat backup: %w", err)
	}
	info := Info{Name: name, Path: path, Size: st.Size(), CreatedAt: now}
	m.logger.Info("backup created", "path", path, "bytes", info.Size, "duration", time.Since(start))

	if _, err := m.Prune(ctx, m.keep); err != nil {
		m.logger.Warn("backup prune failed", "error", err)
	}

	if m.uploader != nil {
		if err := m.uploader.Upload(ctx, path, name); err != nil {
			m.logger.Warn("backup upload failed", "name", name, "error", err)
			return info, fmt.Errorf("upload backup %s: %w", name, err)
		}
		info.Uploaded = true
		m.logger.Info("backup uploaded", "name", name)
	}
	return info, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// List returns the backups in the directory, newest first.
func (m *Manager) List(_ context.Context) ([]Info, error) {
	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		return []Info{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	out := []Info{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		out = append(out, Info{
			Name:      name,
			Path:      filepath.Join(m.dir, name),
			Size:      fi.Size(),
			CreatedAt: parseStamp(name, fi.ModTime()),
		})
	}
	// Names embed a sortable UTC timestamp.
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

func parseStamp(name string, fallback time.Time) time.Time {
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	if len(stamp) > len(stampFmt) {
		stamp = stamp[:len(stampFmt)]
	}
	t, err := time.Parse(stampFmt, stamp)
	if err != nil {
		return fallback
	}
	return t
}

// Prune deletes all but the newest keep backups and returns the names it
// removed.
func (m *Manager) Prune(ctx context.Context, keep int) ([]string, error) {
	if keep < 1 {
		return nil, apperrors.Invalid("keep", fmt.Sprintf("must be at least 1, got %d", keep))
	}
	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, b := range all[min(keep, len(all)):] {
		if err := os.Remove(b.Path); err != nil {
			return removed, fmt.Errorf("remove %s: %w", b.Name, err)
		}
		removed = append(removed, b.Name)
	}
	if len(removed) > 0 {
		m.logger.Info("old backups pruned", "count", len(removed))
	}
	return removed, nil
}
