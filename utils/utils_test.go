package utils

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "0 B", FormatBytes(0))
	assert.Equal(t, "1023 B", FormatBytes(1023))
	assert.Equal(t, "1.0 KB", FormatBytes(1024))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "64.0 MB", FormatBytes(64*1024*1024))
}

type countingWriter struct {
	bytes.Buffer
	calls int
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	cw.calls++
	return cw.Buffer.Write(p)
}

func TestPrefixWriter(t *testing.T) {
	cw := &countingWriter{}
	pw := &PrefixWriter{Writer: cw, Prefix: []byte{0, 0}}

	n, err := pw.Write([]byte("hi"))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, 1, cw.calls)

	_, err = pw.Write([]byte("!"))
	require.NoError(t, err)
	require.Equal(t, []byte{0, 0, 'h', 'i', '!'}, cw.Bytes())
	require.Equal(t, 2, cw.calls)
}
