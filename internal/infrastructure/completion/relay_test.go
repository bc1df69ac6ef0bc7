package completion

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader delivers exactly one scripted chunk per Read call.
type chunkReader struct {
	chunks [][]byte
	err    error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	chunk := r.chunks[0]
	r.chunks = r.chunks[1:]
	n := copy(p, chunk)
	return n, nil
}

func chunksOf(parts ...string) *chunkReader {
	r := &chunkReader{}
	for _, p := range parts {
		r.chunks = append(r.chunks, []byte(p))
	}
	return r
}

func TestRelayCumulativeChunks(t *testing.T) {
	var seen []string
	final, err := Relay(chunksOf("Hel", "lo, ", "world"), func(cumulative string) {
		seen = append(seen, cumulative)
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello, world", final)
	assert.Equal(t, []string{"Hel", "Hello, ", "Hello, world"}, seen)
}

func TestRelaySplitMultiByteRune(t *testing.T) {
	// "héllo" with the two-byte é split across reads.
	raw := []byte("héllo")
	reader := &chunkReader{chunks: [][]byte{raw[:2], raw[2:]}}

	var seen []string
	final, err := Relay(reader, func(cumulative string) {
		seen = append(seen, cumulative)
	})

	require.NoError(t, err)
	assert.Equal(t, "héllo", final)
	assert.Equal(t, []string{"h", "héllo"}, seen, "partial rune held back until complete")
}

func TestRelayReadErrorPreservesPartialText(t *testing.T) {
	reader := chunksOf("partial ")
	reader.err = fmt.Errorf("connection reset")

	var seen []string
	final, err := Relay(reader, func(cumulative string) {
		seen = append(seen, cumulative)
	})

	require.Error(t, err)
	assert.Equal(t, "partial ", final)
	assert.Equal(t, []string{"partial "}, seen)
}

func TestRelayEmptyStream(t *testing.T) {
	calls := 0
	final, err := Relay(chunksOf(), func(string) { calls++ })

	require.NoError(t, err)
	assert.Empty(t, final)
	assert.Zero(t, calls)
}
