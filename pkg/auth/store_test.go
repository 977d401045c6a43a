package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptedFileStoreRoundTrip(t *testing.T) {
	store, err := NewEncryptedFileStore(t.TempDir())
	require.NoError(t, err)

	blob := []byte(`{"sessionid":"abc","csrftoken":"xyz"}`)
	require.NoError(t, store.Save("dummyuser", blob))

	got, err := store.Load("dummyuser")
	require.NoError(t, err)
	assert.Equal(t, blob, got)

	require.NoError(t, store.Remove("dummyuser"))
	_, err = store.Load("dummyuser")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEncryptedFileStoreBlobIsOpaque(t *testing.T) {
	dir := t.TempDir()
	store, err := NewEncryptedFileStore(dir)
	require.NoError(t, err)

	secret := []byte("sessionid=verysecret")
	require.NoError(t, store.Save("acc", secret))

	// A second store over the same directory shares the passphrase file and
	// must be able to decrypt.
	store2, err := NewEncryptedFileStore(dir)
	require.NoError(t, err)
	got, err := store2.Load("acc")
	require.NoError(t, err)
	assert.Equal(t, secret, got)
}

func TestEncryptedFileStoreOverwrite(t *testing.T) {
	store, err := NewEncryptedFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save("k", []byte("old")))
	require.NoError(t, store.Save("k", []byte("new")))

	got, err := store.Load("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()

	_, err := store.Load("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save("k", []byte("v")))
	got, err := store.Load("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	assert.ErrorIs(t, store.Remove("missing"), ErrNotFound)
	require.NoError(t, store.Remove("k"))
}

func TestStoresRejectEmptyKey(t *testing.T) {
	store := NewMemoryStore()
	assert.ErrorIs(t, store.Save("", nil), ErrInvalidKey)
	_, err := store.Load("")
	assert.ErrorIs(t, err, ErrInvalidKey)
	assert.ErrorIs(t, store.Remove(""), ErrInvalidKey)
}

// failingStore always errors, to exercise Manager fallback.
type failingStore struct{}

func (failingStore) Save(string, []byte) error    { return errors.New("backend down") }
func (failingStore) Load(string) ([]byte, error)  { return nil, errors.New("backend down") }
func (failingStore) Remove(string) error          { return errors.New("backend down") }

func TestManagerFallback(t *testing.T) {
	mem := NewMemoryStore()
	m := NewManager(failingStore{}, mem)

	require.NoError(t, m.Save("user", []byte("blob")))
	got, err := m.Load("user")
	require.NoError(t, err)
	assert.Equal(t, []byte("blob"), got)

	require.NoError(t, m.Remove("user"))
	_, err = m.Load("user")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerAllFail(t *testing.T) {
	m := NewManager(failingStore{})
	assert.Error(t, m.Save("user", []byte("blob")))
	_, err := m.Load("user")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Remove("user"), ErrNotFound)
}
