package remotecas

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstByteReaderMirrorsAndFiresOnce(t *testing.T) {
	content := []byte("mirrored content for hashing and disk")
	src := bytes.NewReader(content)
	var mirror bytes.Buffer
	fired := 0

	r := &firstByteReader{r: src, mirror: &mirror, onFirstByte: func() { fired++ }}

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Equal(t, content, mirror.Bytes())
	assert.Equal(t, 1, fired, "onFirstByte must fire exactly once even across multiple Read calls")
}

func TestFirstByteReaderPropagatesMirrorWriteError(t *testing.T) {
	src := bytes.NewReader([]byte("data"))
	r := &firstByteReader{r: src, mirror: failingWriter{}, onFirstByte: func() {}}

	_, err := io.ReadAll(r)
	assert.Error(t, err)
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, assertWriteErr
}

var assertWriteErr = io.ErrClosedPipe
