package filesync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifile/notifile/target"
)

func noSpec() target.FileSpec {
	return target.FileSpec{Owner: -1, Group: -1}
}

func listTempFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	return matches
}

func TestPublish_NewFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.example.com")
	content := []byte("Zone: example.com\n")

	report, err := Publish(path, content, noSpec())
	require.NoError(t, err)

	assert.True(t, report.Changed)
	assert.Equal(t, xxhash.Sum64(content), report.Checksum)
	assert.Equal(t, len(content), report.Bytes)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	assert.Empty(t, listTempFiles(t, dir))
}

func TestPublish_UnchangedContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.example.com")
	content := []byte("Zone: example.com\n")

	report, err := Publish(path, content, noSpec())
	require.NoError(t, err)
	require.True(t, report.Changed)

	report, err = Publish(path, content, noSpec())
	require.NoError(t, err)

	assert.False(t, report.Changed, "identical content must not be rewritten")
	assert.Empty(t, listTempFiles(t, dir))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestPublish_ChangedContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.example.com")

	_, err := Publish(path, []byte("Zone: example.com\n"), noSpec())
	require.NoError(t, err)

	updated := []byte("Zone: example.com\nZone: example.org\n")
	report, err := Publish(path, updated, noSpec())
	require.NoError(t, err)

	assert.True(t, report.Changed)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, updated, got)
	assert.Empty(t, listTempFiles(t, dir))
}

func TestPublish_SameSizeDifferentBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.example.com")

	_, err := Publish(path, []byte("aaaa"), noSpec())
	require.NoError(t, err)

	report, err := Publish(path, []byte("bbbb"), noSpec())
	require.NoError(t, err)
	assert.True(t, report.Changed)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("bbbb"), got)
}

func TestPublish_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "db.example.com")

	_, err := Publish(path, []byte("content"), noSpec())
	assert.Error(t, err)
}

func TestPublish_AppliesMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.example.com")

	spec := target.FileSpec{Owner: -1, Group: -1, Mode: 0o640, HasMode: true}
	_, err := Publish(path, []byte("content"), spec)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())
}

func TestPublish_OwnershipToSelf(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "db.example.com")

	// Chown to our own uid/gid works unprivileged
	spec := target.FileSpec{Owner: os.Getuid(), Group: os.Getgid()}
	_, err := Publish(path, []byte("content"), spec)
	assert.NoError(t, err)
}

func TestSameContent_MissingDestination(t *testing.T) {
	same, err := sameContent(filepath.Join(t.TempDir(), "absent"), 0, 0)
	require.NoError(t, err)
	assert.False(t, same)
}
