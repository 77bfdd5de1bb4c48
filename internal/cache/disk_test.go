package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskStorePutGet(t *testing.T) {
	store, err := OpenDiskStore(filepath.Join(t.TempDir(), "nested"))
	require.NoError(t, err)

	fp := FingerprintOf([]byte("module"))
	var out DiskPayload
	ok, err := store.Get(fp, &out)
	require.NoError(t, err)
	assert.False(t, ok)

	in := &DiskPayload{Schema: diskSchemaVersion, Fingerprint: fp[:], Text: ".version 7.0\n", Guards: 3}
	require.NoError(t, store.Put(fp, in))

	ok, err = store.Get(fp, &out)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in.Text, out.Text)
	assert.Equal(t, 3, out.report().Guards)

	entries, err := os.ReadDir(filepath.Join(store.Dir(), "modules"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	require.NoError(t, store.DropAll())
	ok, err = store.Get(fp, &out)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDiskStoreDefaultsToXDGCache(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", base)
	store, err := OpenDiskStore("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "panoptes"), store.Dir())
}

func TestStaleSchemaIsIgnored(t *testing.T) {
	store, err := OpenDiskStore(t.TempDir())
	require.NoError(t, err)
	fp := FingerprintOf([]byte(kernel))
	require.NoError(t, store.Put(fp, &DiskPayload{Schema: diskSchemaVersion + 1, Text: "garbage"}))

	tr := newCounting()
	c := New(tr, Options{Store: store})
	e, err := c.Translate(t.Context(), []byte(kernel))
	require.NoError(t, err)
	assert.False(t, e.FromDisk)
	assert.Equal(t, uint64(1), c.Stats().Translations)
}

func TestFingerprintFormatting(t *testing.T) {
	fp := FingerprintOf(nil)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", fp.String())
	assert.Equal(t, "e3b0c44298fc", fp.Short())
}
