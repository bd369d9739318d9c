package chunker

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/openmined/chunksync/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_InvalidChunkSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := Split([]byte("abc"), size)
		assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)

		_, err = New(size)
		assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
	}
}

func TestSplit_EmptyInputYieldsSingleEmptyChunk(t *testing.T) {
	chunks, err := Split(nil, 16)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Empty(t, chunks[0].Bytes)
}

func TestSplit_Boundaries(t *testing.T) {
	const max = 16
	cases := []struct {
		size   int
		chunks int
	}{
		{max - 1, 1},
		{max, 1},
		{max + 1, 2},
		{3 * max, 3},
		{3*max + 5, 4},
	}

	c, err := New(max)
	require.NoError(t, err)

	for _, tc := range cases {
		chunks, err := Split(bytes.Repeat([]byte{'x'}, tc.size), max)
		require.NoError(t, err)
		assert.Len(t, chunks, tc.chunks, "size %d", tc.size)
		assert.Equal(t, tc.chunks, c.Count(tc.size), "count for size %d", tc.size)

		// every chunk but the last is exactly max
		for i, ch := range chunks {
			assert.Equal(t, i, ch.Index)
			if i < len(chunks)-1 {
				assert.Len(t, ch.Bytes, max)
			} else {
				assert.LessOrEqual(t, len(ch.Bytes), max)
				assert.NotEmpty(t, ch.Bytes)
			}
		}
	}
}

func TestSplit_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, size := range []int{0, 1, 2, 15, 16, 17, 100, 1023, 4096, 9999} {
		data := make([]byte, size)
		rng.Read(data)
		for _, max := range []int{1, 3, 16, 1024} {
			chunks, err := Split(data, max)
			require.NoError(t, err)

			joined, err := Join(chunks)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(data, joined), "size=%d max=%d", size, max)
		}
	}
}

func TestChunker_SplitStampsContentType(t *testing.T) {
	c, err := New(4)
	require.NoError(t, err)
	assert.Equal(t, 4, c.MaxChunkSize())

	chunks := c.Split([]byte("<html></html>"), "text/html")
	require.Len(t, chunks, 4)
	for _, ch := range chunks {
		assert.Equal(t, "text/html", ch.ContentType)
	}
}

func TestSplit_ChunksDoNotShareCapacity(t *testing.T) {
	chunks, err := Split([]byte("aaaabbbb"), 4)
	require.NoError(t, err)

	_ = append(chunks[0].Bytes, 'z')
	assert.Equal(t, []byte("bbbb"), chunks[1].Bytes)
}

func TestJoin_OutOfOrder(t *testing.T) {
	_, err := Join([]Chunk{{Index: 1, Bytes: []byte("a")}})
	assert.Error(t, err)
}
