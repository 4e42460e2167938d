package filerepo_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-dropship-gateway/token"
	"github.com/jrsteele09/go-dropship-gateway/token/filerepo"
	"github.com/stretchr/testify/require"
)

func TestFileCredentialRepoLifecycle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	repo := filerepo.NewInFolder(dir)

	rec, err := repo.Load()
	require.NoError(t, err)
	require.Nil(t, rec, "missing file is not an error")

	want := &token.Record{AccessToken: "a", RefreshToken: "r", AccessTokenExpiry: 10, LastAuthAt: 5, AuthAttempts: 2, Timestamp: 7}
	require.NoError(t, repo.Save(want))

	got, err := repo.Load()
	require.NoError(t, err)
	require.Equal(t, want, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file is renamed into place")
	require.Equal(t, filerepo.DefaultFileName, entries[0].Name())

	require.NoError(t, repo.Delete())
	require.NoError(t, repo.Delete(), "deleting twice is fine")
	rec, err = repo.Load()
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestFileCredentialRepoCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := filerepo.New(path).Load()
	require.Error(t, err)
}
