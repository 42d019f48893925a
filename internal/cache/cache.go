// Package cache implements the keyed build cache pipelines use to carry
// expensive tool state across runs.
//
// A cache entry is an archive of one or more directories plus a TOML sidecar
// describing it. Entries are keyed by operating system, pipeline scope, the
// UTC day the key was minted and the digest of the project descriptor, so any
// descriptor change or day rollover starts a cold build.
package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/droidforge/droidforge/internal/fileutils"
	"github.com/ubuntu/decorate"
)

// Key identifies one cached tree.
type Key struct {
	OS       string
	Scope    string
	Date     string
	SpecHash string
}

// NewKey mints the cache key for the descriptor at specPath.
//
// The date component is the UTC day of now, so entries naturally expire at
// day rollover.
func NewKey(scope, specPath string, now time.Time) (Key, error) {
	hash, err := fileutils.Sha256File(specPath)
	if err != nil {
		return Key{}, fmt.Errorf("could not derive cache key: %w", err)
	}

	return Key{
		OS:       runtime.GOOS,
		Scope:    scope,
		Date:     now.UTC().Format("20060102"),
		SpecHash: hash,
	}, nil
}

func (k Key) String() string {
	return strings.Join([]string{k.OS, k.Scope, k.Date, k.SpecHash}, "-")
}

// Entry describes one stored cache archive.
type Entry struct {
	Key     string    `toml:"key"`
	Created time.Time `toml:"created"`
	Size    int64     `toml:"size"`
	Dirs    []string  `toml:"dirs"`
}

type timeProvider interface {
	Now() time.Time
}

type realTimeProvider struct{}

func (realTimeProvider) Now() time.Time {
	return time.Now()
}

type options struct {
	timeProvider timeProvider
}

// Options is the function signature used to tweak the store.
type Options func(*options)

// Store keeps cache archives under a root directory.
type Store struct {
	root string
	opts options
}

// New returns a store rooted at root, creating it when needed.
func New(root string, args ...Options) (Store, error) {
	opts := options{
		timeProvider: realTimeProvider{},
	}
	for _, opt := range args {
		opt(&opts)
	}

	if err := os.MkdirAll(root, 0750); err != nil {
		return Store{}, fmt.Errorf("could not create cache directory: %w", err)
	}
	return Store{root: root, opts: opts}, nil
}

// Save archives dirs under key. Entries are immutable: saving an existing key
// is a no-op so that concurrent runs racing on the same key keep the first
// archive.
func (s Store) Save(key Key, dirs ...string) (err error) {
	defer decorate.OnError(&err, "could not save cache entry %s", key)

	if len(dirs) == 0 {
		return errors.New("no directories to cache")
	}

	archive := s.archivePath(key)
	if _, err := os.Stat(archive); err == nil {
		slog.Debug("Cache entry already exists, keeping existing archive", "key", key.String())
		return nil
	}

	names := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("cannot cache %s: %w", dir, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("cannot cache %s: not a directory", dir)
		}
		names = append(names, filepath.Base(dir))
	}

	// Pack into a temporary file first so a failed run never leaves a
	// half-written archive under a valid key.
	tmp, err := os.CreateTemp(s.root, "pack-*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		_ = tmp.Close()
		if rmErr := os.Remove(tmp.Name()); rmErr != nil && !os.IsNotExist(rmErr) {
			slog.Warn("Failed to remove temporary cache archive", "file", tmp.Name(), "error", rmErr)
		}
	}()

	if err := tarDirs(tmp, dirs); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	info, err := os.Stat(tmp.Name())
	if err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), archive); err != nil {
		return err
	}

	entry := Entry{
		Key:     key.String(),
		Created: s.opts.timeProvider.Now().UTC(),
		Size:    info.Size(),
		Dirs:    names,
	}
	data, err := tomlMarshal(entry)
	if err != nil {
		return err
	}
	return fileutils.AtomicWrite(s.sidecarPath(key), data)
}

// Restore unpacks the entry for key into dst.
// It returns false without error on a cache miss.
func (s Store) Restore(key Key, dst string) (hit bool, err error) {
	defer decorate.OnError(&err, "could not restore cache entry %s", key)

	archive := s.archivePath(key)
	f, err := os.Open(archive)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	if err := untar(f, dst); err != nil {
		return false, err
	}
	return true, nil
}

// List returns the stored entries sorted by key.
func (s Store) List() ([]Entry, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, "*.toml"))
	if err != nil {
		return nil, fmt.Errorf("could not list cache entries: %w", err)
	}

	entries := make([]Entry, 0, len(matches))
	for _, path := range matches {
		var entry Entry
		if _, err := toml.DecodeFile(path, &entry); err != nil {
			slog.Warn("Skipping unreadable cache sidecar", "file", path, "error", err)
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Prune removes entries older than maxAge and returns how many were removed.
func (s Store) Prune(maxAge time.Duration) (removed int, err error) {
	defer decorate.OnError(&err, "could not prune cache")

	entries, err := s.List()
	if err != nil {
		return 0, err
	}

	cutoff := s.opts.timeProvider.Now().UTC().Add(-maxAge)
	for _, entry := range entries {
		if !entry.Created.Before(cutoff) {
			continue
		}

		for _, path := range []string{
			filepath.Join(s.root, entry.Key+".tar"),
			filepath.Join(s.root, entry.Key+".toml"),
		} {
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return removed, err
			}
		}
		slog.Info("Pruned cache entry", "key", entry.Key, "created", entry.Created)
		removed++
	}

	return removed, nil
}

func (s Store) archivePath(key Key) string {
	return filepath.Join(s.root, key.String()+".tar")
}

func (s Store) sidecarPath(key Key) string {
	return filepath.Join(s.root, key.String()+".toml")
}

func tomlMarshal(v any) ([]byte, error) {
	var b strings.Builder
	if err := toml.NewEncoder(&b).Encode(v); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}
