package storage

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("jc-1", "job-cards/jc-1/a.jpg")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	subject, path, parsedExpiry, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "jc-1", subject)
	assert.Equal(t, "job-cards/jc-1/a.jpg", path)
	assert.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLSignerRejectsTamperingAndExpiry(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Generate("jc-1", "job-cards/jc-1/a.jpg")
	require.NoError(t, err)

	_, _, _, err = NewSignedURLSigner("other", time.Minute).Parse(token)
	assert.Error(t, err)

	_, _, _, err = signer.Parse(token + "0")
	assert.Error(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, _, _, err = signer.Parse(token)
	assert.Error(t, err)
}

func TestSignedURLSignerRequiresSecret(t *testing.T) {
	_, _, err := NewSignedURLSigner("", time.Minute).Generate("jc-1", "a.jpg")
	assert.Error(t, err)
}

func TestLocalStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	name, err := store.Save("job-cards/jc-1/a.jpg", []byte("jpeg-bytes"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "job-cards", "jc-1", "a.jpg"))

	file, err := store.Open(name)
	require.NoError(t, err)
	data, err := io.ReadAll(file)
	require.NoError(t, err)
	require.NoError(t, file.Close())
	assert.Equal(t, "jpeg-bytes", string(data))

	require.NoError(t, store.Delete(name))
	require.NoError(t, store.Delete(name))
	_, err = os.Stat(filepath.Join(dir, "job-cards", "jc-1", "a.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalStorageRejectsEscapingPaths(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"../secret", "job-cards/../../etc/passwd", "/etc/passwd", ""} {
		_, err := store.Save(name, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidPath, name)
	}
}
