// Package ps2mctesting provides shared test fixtures: a freshly formatted
// in-memory card image, and gzip (de)compression of stored fixture images,
// mirroring _examples/dargueta-disko's testing/images.go and
// utilities/compression.
package ps2mctesting

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dargueta/ps2mc"
	"github.com/dargueta/ps2mc/geometry"
)

// NewFormattedImage formats a fresh in-memory card image of the geometry
// named by slug (e.g. "8mb") and mounts it, the baseline most integration
// tests across the module start from.
func NewFormattedImage(t *testing.T, slug string) *ps2mc.Engine {
	t.Helper()
	geom, err := geometry.Lookup(slug)
	require.NoError(t, err)

	buf := make([]byte, geom.TotalSizeBytes())
	stream := bytesextra.NewReadWriteSeeker(buf)

	e, err := ps2mc.Format(stream, geom, true)
	require.NoError(t, err)
	return e
}

// CompressImage gzips a card image for storage as a small embedded test
// fixture.
func CompressImage(input io.Reader, output io.Writer) (int64, error) {
	writer := &countingWriter{Writer: output}
	gzWriter, err := gzip.NewWriterLevel(writer, gzip.BestCompression)
	if err != nil {
		return 0, fmt.Errorf("failed to create gzip writer: %w", err)
	}

	_, err = io.Copy(gzWriter, input)
	closeErr := gzWriter.Close()
	if err != nil {
		return writer.BytesWritten, fmt.Errorf("gzip compression error: %w", err)
	}
	if closeErr != nil {
		return writer.BytesWritten, fmt.Errorf("gzip compression error: %w", closeErr)
	}
	return writer.BytesWritten, nil
}

// DecompressImageToBytes inflates a gzipped fixture image into a plain byte
// slice, the form LoadImage needs to back a bytesextra.ReadWriteSeeker.
func DecompressImageToBytes(input io.Reader) ([]byte, error) {
	gzReader, err := gzip.NewReader(input)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzReader.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, gzReader); err != nil {
		return nil, fmt.Errorf("gzip decompression error: %w", err)
	}
	return buf.Bytes(), nil
}

// LoadImage decompresses compressedImageBytes and wraps the result in an
// in-memory io.ReadWriteSeeker sized exactly to the uncompressed image,
// mirroring dargueta-disko's LoadDiskImage.
func LoadImage(t *testing.T, compressedImageBytes []byte, expectedSize int64) io.ReadWriteSeeker {
	t.Helper()
	require.Greater(t, len(compressedImageBytes), 0, "compressed image is empty")

	imageBytes, err := DecompressImageToBytes(bytes.NewReader(compressedImageBytes))
	require.NoError(t, err)
	require.EqualValues(t, expectedSize, len(imageBytes), "uncompressed image is wrong size")

	return bytesextra.NewReadWriteSeeker(imageBytes)
}

type countingWriter struct {
	Writer       io.Writer
	BytesWritten int64
}

func (w *countingWriter) Write(b []byte) (int, error) {
	n, err := w.Writer.Write(b)
	if err == nil {
		w.BytesWritten += int64(n)
	}
	return n, err
}
