package badger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "collection")
	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenBackend_NotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	_, err := OpenBackend(file, false)
	assert.Error(t, err)
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	assert.False(t, backend.IsClosed())
	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())
}

func TestMakeCompanyKey(t *testing.T) {
	key := makeCompanyKey("ACME", "ACME_a_chunk0000")
	assert.Equal(t, "chkco:ACME\x00ACME_a_chunk0000", string(key))
	assert.Equal(t, "chkco:ACME\x00", string(makePartialCompanyKey("ACME")))

	// a longer company name must not fall under a shorter one's prefix
	other := makeCompanyKey("ACME Holdings", "x")
	assert.NotContains(t, string(other), string(makePartialCompanyKey("ACME")))
}

func TestDeletePrefixes(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	err = backend.WithTx(func(tx *badger.Txn) error {
		for _, k := range []string{"chk:a", "chk:b", "chkco:x\x00a", "other:1"} {
			if err := tx.Set([]byte(k), []byte("v")); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	require.NoError(t, err)

	deleted, err := backend.DeletePrefixes(chunkPrefix, chunkCompanyPrefix)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	err = backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get([]byte("other:1"))
		return err
	}, false)
	assert.NoError(t, err)
}
