package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreContract(t *testing.T) {
	t.Parallel()

	backends := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemory()
		},
		"file": func(t *testing.T) Store {
			s, err := NewFile(filepath.Join(t.TempDir(), "session.json"))
			require.NoError(t, err)
			return s
		},
	}

	for name, newStore := range backends {
		newStore := newStore
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			s := newStore(t)

			t.Run("missing key", func(t *testing.T) {
				_, err := s.Get(ctx, KeyAccessToken)
				require.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("set and get three keys", func(t *testing.T) {
				require.NoError(t, s.Set(ctx, KeyAccessToken, "tok-a"))
				require.NoError(t, s.Set(ctx, KeyRefreshToken, "tok-r"))
				require.NoError(t, s.Set(ctx, KeyAccount, `{"id":"op-1"}`))

				value, err := s.Get(ctx, KeyAccessToken)
				require.NoError(t, err)
				require.Equal(t, "tok-a", value)

				value, err = s.Get(ctx, KeyAccount)
				require.NoError(t, err)
				require.Equal(t, `{"id":"op-1"}`, value)
			})

			t.Run("delete single key", func(t *testing.T) {
				require.NoError(t, s.Delete(ctx, KeyRefreshToken))
				_, err := s.Get(ctx, KeyRefreshToken)
				require.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("clear removes everything", func(t *testing.T) {
				require.NoError(t, s.Clear(ctx))
				for _, key := range []string{KeyAccessToken, KeyRefreshToken, KeyAccount} {
					_, err := s.Get(ctx, key)
					require.ErrorIs(t, err, ErrNotFound)
				}
			})
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")

	first, err := NewFile(path)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, KeyAccessToken, "tok-a"))

	second, err := NewFile(path)
	require.NoError(t, err)
	value, err := second.Get(ctx, KeyAccessToken)
	require.NoError(t, err)
	require.Equal(t, "tok-a", value)
}

func TestFileStoreTreatsCorruptFileAsEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := NewFile(path)
	require.NoError(t, err)

	_, err = s.Get(ctx, KeyAccessToken)
	require.ErrorIs(t, err, ErrNotFound)
}
