package evidence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFSStore(t *testing.T) {
	ctx := context.Background()

	t.Run("put then get round-trips", func(t *testing.T) {
		s, err := NewFSStore(t.TempDir())
		require.NoError(t, err)

		ref, err := s.Put(ctx, []byte("frame data"), "video/webm")
		require.NoError(t, err)
		assert.Contains(t, ref, ".webm")

		data, err := s.Get(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, []byte("frame data"), data)
	})

	t.Run("get of unknown ref returns nil", func(t *testing.T) {
		s, err := NewFSStore(t.TempDir())
		require.NoError(t, err)

		data, err := s.Get(ctx, "2026/1/1/nonexistent.webm")
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s, err := NewFSStore(t.TempDir())
		require.NoError(t, err)

		ref, err := s.Put(ctx, []byte("x"), "video/mp4")
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, ref))
		require.NoError(t, s.Delete(ctx, ref))

		data, err := s.Get(ctx, ref)
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("rejects refs escaping the base dir", func(t *testing.T) {
		s, err := NewFSStore(t.TempDir())
		require.NoError(t, err)

		_, err = s.Get(ctx, "../../etc/passwd")
		assert.Error(t, err)

		err = s.Delete(ctx, "../outside")
		assert.Error(t, err)
	})
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".webm", extensionFor("video/webm;codecs=vp8"))
	assert.Equal(t, ".mp4", extensionFor("video/mp4"))
	assert.Equal(t, ".jpg", extensionFor("image/jpeg"))
	assert.Equal(t, ".png", extensionFor("image/png"))
	assert.Equal(t, ".bin", extensionFor("application/octet-stream"))
}
