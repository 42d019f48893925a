package cache_test

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/droidforge/droidforge/internal/cache"
	"github.com/droidforge/droidforge/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 7, 14, 3, 0, 0, 0, time.UTC)

	specPath := filepath.Join(t.TempDir(), "buildozer.spec")
	require.NoError(t, os.WriteFile(specPath, []byte("[app]\ntitle = App\n"), 0600),
		"Setup: failed to write spec file")

	key, err := cache.NewKey("buildozer", specPath, now)
	require.NoError(t, err, "NewKey should not return an error")

	assert.Equal(t, runtime.GOOS, key.OS, "key should carry the operating system")
	assert.Equal(t, "buildozer", key.Scope, "key should carry the scope")
	assert.Equal(t, "20250714", key.Date, "key should carry the UTC day")
	assert.Len(t, key.SpecHash, 64, "key should carry the full descriptor digest")

	parts := strings.SplitN(key.String(), "-", 4)
	require.Len(t, parts, 4, "string form should have four components")
	assert.Equal(t, []string{runtime.GOOS, "buildozer", "20250714", key.SpecHash}, parts,
		"string form should be os-scope-date-hash")
}

func TestNewKeyChangesWithInputs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	specPath := filepath.Join(dir, "buildozer.spec")
	require.NoError(t, os.WriteFile(specPath, []byte("v1"), 0600), "Setup: failed to write spec file")

	now := time.Date(2025, 7, 14, 3, 0, 0, 0, time.UTC)
	base, err := cache.NewKey("buildozer", specPath, now)
	require.NoError(t, err, "NewKey should not return an error")

	same, err := cache.NewKey("buildozer", specPath, now.Add(2*time.Hour))
	require.NoError(t, err, "NewKey should not return an error")
	assert.Equal(t, base.String(), same.String(), "same day and spec should mint the same key")

	nextDay, err := cache.NewKey("buildozer", specPath, now.Add(24*time.Hour))
	require.NoError(t, err, "NewKey should not return an error")
	assert.NotEqual(t, base.String(), nextDay.String(), "day rollover should mint a new key")

	require.NoError(t, os.WriteFile(specPath, []byte("v2"), 0600), "Setup: failed to update spec file")
	changed, err := cache.NewKey("buildozer", specPath, now)
	require.NoError(t, err, "NewKey should not return an error")
	assert.NotEqual(t, base.SpecHash, changed.SpecHash, "descriptor change should change the digest")

	_, err = cache.NewKey("buildozer", filepath.Join(dir, "missing.spec"), now)
	require.Error(t, err, "NewKey should fail on a missing descriptor")
}

func TestSaveRestore(t *testing.T) {
	t.Parallel()

	store, key := newStore(t)

	src := t.TempDir()
	workDir := filepath.Join(src, ".buildozer")
	require.NoError(t, os.MkdirAll(filepath.Join(workDir, "android", "platform"), 0700),
		"Setup: failed to create work dir")
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "state.db"), []byte("state"), 0600),
		"Setup: failed to write file")
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "android", "platform", "tool"), []byte("tool"), 0700),
		"Setup: failed to write nested file")

	require.NoError(t, store.Save(key, workDir), "Save should not return an error")

	dst := t.TempDir()
	hit, err := store.Restore(key, dst)
	require.NoError(t, err, "Restore should not return an error")
	require.True(t, hit, "Restore should report a hit")

	got, err := testutils.GetDirContents(t, dst, 5)
	require.NoError(t, err, "reading restored tree should not fail")
	want := map[string]string{
		".buildozer/state.db":              "state",
		".buildozer/android/platform/tool": "tool",
	}
	assert.Equal(t, want, got, "restored tree should match the cached tree")
}

func TestRestoreMiss(t *testing.T) {
	t.Parallel()

	store, key := newStore(t)

	hit, err := store.Restore(key, t.TempDir())
	require.NoError(t, err, "Restore should not return an error on a miss")
	assert.False(t, hit, "Restore should report a miss")
}

func TestSaveIsImmutable(t *testing.T) {
	t.Parallel()

	store, key := newStore(t)

	src := t.TempDir()
	workDir := filepath.Join(src, ".buildozer")
	require.NoError(t, os.MkdirAll(workDir, 0700), "Setup: failed to create work dir")
	path := filepath.Join(workDir, "state.db")
	require.NoError(t, os.WriteFile(path, []byte("first"), 0600), "Setup: failed to write file")

	require.NoError(t, store.Save(key, workDir), "Save should not return an error")

	require.NoError(t, os.WriteFile(path, []byte("second"), 0600), "Setup: failed to update file")
	require.NoError(t, store.Save(key, workDir), "saving an existing key should not return an error")

	dst := t.TempDir()
	hit, err := store.Restore(key, dst)
	require.NoError(t, err, "Restore should not return an error")
	require.True(t, hit, "Restore should report a hit")

	data, err := os.ReadFile(filepath.Join(dst, ".buildozer", "state.db"))
	require.NoError(t, err, "restored file should be readable")
	assert.Equal(t, "first", string(data), "the first archive should win")
}

func TestSaveErrors(t *testing.T) {
	t.Parallel()

	store, key := newStore(t)

	require.Error(t, store.Save(key), "Save without directories should return an error")

	require.Error(t, store.Save(key, filepath.Join(t.TempDir(), "missing")),
		"Save of a missing directory should return an error")

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("data"), 0600), "Setup: failed to write file")
	require.Error(t, store.Save(key, file), "Save of a regular file should return an error")
}

func TestList(t *testing.T) {
	t.Parallel()

	store, key := newStore(t)

	entries, err := store.List()
	require.NoError(t, err, "List should not return an error on an empty store")
	assert.Empty(t, entries, "empty store should have no entries")

	workDir := filepath.Join(t.TempDir(), "workdir")
	require.NoError(t, os.MkdirAll(workDir, 0700), "Setup: failed to create work dir")
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "f"), []byte("x"), 0600),
		"Setup: failed to write file")
	require.NoError(t, store.Save(key, workDir), "Save should not return an error")

	entries, err = store.List()
	require.NoError(t, err, "List should not return an error")
	require.Len(t, entries, 1, "store should have one entry")
	assert.Equal(t, key.String(), entries[0].Key, "entry key should match")
	assert.Equal(t, []string{"workdir"}, entries[0].Dirs, "entry should record the cached directory names")
	assert.Positive(t, entries[0].Size, "entry should record the archive size")
}

func TestPrune(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 7, 14, 12, 0, 0, 0, time.UTC)
	tp := &cache.MockTimeProvider{CurrentTime: now.Add(-72 * time.Hour)}

	root := t.TempDir()
	store, err := cache.New(root, cache.WithTimeProvider(tp))
	require.NoError(t, err, "Setup: New should not return an error")

	workDir := filepath.Join(t.TempDir(), "workdir")
	require.NoError(t, os.MkdirAll(workDir, 0700), "Setup: failed to create work dir")
	require.NoError(t, os.WriteFile(filepath.Join(workDir, "f"), []byte("x"), 0600),
		"Setup: failed to write file")

	oldKey := keyForSpec(t, "old", "20250711")
	require.NoError(t, store.Save(oldKey, workDir), "Setup: Save should not return an error")

	tp.CurrentTime = now
	freshKey := keyForSpec(t, "fresh", "20250714")
	require.NoError(t, store.Save(freshKey, workDir), "Setup: Save should not return an error")

	removed, err := store.Prune(48 * time.Hour)
	require.NoError(t, err, "Prune should not return an error")
	assert.Equal(t, 1, removed, "only the stale entry should be pruned")

	entries, err := store.List()
	require.NoError(t, err, "List should not return an error")
	require.Len(t, entries, 1, "one entry should remain")
	assert.Equal(t, freshKey.String(), entries[0].Key, "the fresh entry should remain")

	hit, err := store.Restore(oldKey, t.TempDir())
	require.NoError(t, err, "Restore should not return an error")
	assert.False(t, hit, "the pruned archive should be gone")
}

func newStore(t *testing.T) (cache.Store, cache.Key) {
	t.Helper()

	store, err := cache.New(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err, "Setup: New should not return an error")

	return store, keyForSpec(t, "content", "20250714")
}

func keyForSpec(t *testing.T, content, date string) cache.Key {
	t.Helper()

	specPath := filepath.Join(t.TempDir(), "buildozer.spec")
	require.NoError(t, os.WriteFile(specPath, []byte(content), 0600),
		"Setup: failed to write spec file")

	day, err := time.Parse("20060102", date)
	require.NoError(t, err, "Setup: failed to parse date")

	key, err := cache.NewKey("buildozer", specPath, day)
	require.NoError(t, err, fmt.Sprintf("Setup: NewKey should not fail for %s", content))
	return key
}
