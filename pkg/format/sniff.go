package format

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

// HasGzipMagic reports whether header starts with the gzip member magic.
func HasGzipMagic(header []byte) bool {
	return len(header) >= 2 && header[0] == 0x1f && header[1] == 0x8b
}

// GunzipPrefix inflates up to n bytes from the start of a gzip stream that
// may be truncated. It returns nil when header is not gzip at all.
func GunzipPrefix(header []byte, n int) []byte {
	if !HasGzipMagic(header) {
		return nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(header))
	if err != nil {
		return nil
	}
	defer zr.Close()

	buf := make([]byte, n)
	read, _ := io.ReadFull(zr, buf)
	return buf[:read]
}
