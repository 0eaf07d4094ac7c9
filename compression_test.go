package csvapi

import (
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDecompress(t *testing.T) {
	t.Parallel()

	payload := []byte("name,age\nalice,30\n")

	t.Run("Gzip", func(t *testing.T) {
		t.Parallel()

		compressed := gzipBytes(t, payload)
		assert.True(t, isCompressed(compressed))

		out, err := Decompress(compressed, 0)
		require.NoError(t, err)
		assert.Equal(t, payload, out)
	})

	t.Run("Zstd", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w, err := zstd.NewWriter(&buf)
		require.NoError(t, err)
		_, err = w.Write(payload)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		assert.True(t, isCompressed(buf.Bytes()))
		out, err := Decompress(buf.Bytes(), 0)
		require.NoError(t, err)
		assert.Equal(t, payload, out)
	})

	t.Run("Xz", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w, err := xz.NewWriter(&buf)
		require.NoError(t, err)
		_, err = w.Write(payload)
		require.NoError(t, err)
		require.NoError(t, w.Close())

		assert.True(t, isCompressed(buf.Bytes()))
		out, err := Decompress(buf.Bytes(), 0)
		require.NoError(t, err)
		assert.Equal(t, payload, out)
	})

	t.Run("Uncompressed passes through unchanged", func(t *testing.T) {
		t.Parallel()

		assert.False(t, isCompressed(payload))
		out, err := Decompress(payload, 0)
		require.NoError(t, err)
		assert.Equal(t, payload, out)
	})

	t.Run("Decompressed size over the cap is rejected", func(t *testing.T) {
		t.Parallel()

		big := bytes.Repeat([]byte("aaaaaaaaaa\n"), 1000)
		compressed := gzipBytes(t, big)

		_, err := Decompress(compressed, 100)
		assert.ErrorIs(t, err, ErrSizeExceeded)
	})

	t.Run("Truncated gzip is malformed", func(t *testing.T) {
		t.Parallel()

		compressed := gzipBytes(t, payload)
		_, err := Decompress(compressed[:4], 0)
		assert.ErrorIs(t, err, ErrMalformedInput)
	})
}
