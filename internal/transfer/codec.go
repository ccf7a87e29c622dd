package transfer

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/mholt/archives"
	"github.com/pkg/errors"
)

var gzipMagic = []byte{0x1f, 0x8b}

// IsGzip reports whether data starts with the gzip magic number.
func IsGzip(data []byte) bool {
	return bytes.HasPrefix(data, gzipMagic)
}

// Encode writes snap as indented JSON, gzip-compressed when compress is set.
func Encode(w io.Writer, snap *Snapshot, compress bool) error {
	if !compress {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(snap), "transfer: encode snapshot")
	}

	zw, err := archives.Gz{}.OpenWriter(w)
	if err != nil {
		return errors.Wrap(err, "transfer: open gzip writer")
	}
	if err := json.NewEncoder(zw).Encode(snap); err != nil {
		zw.Close()
		return errors.Wrap(err, "transfer: encode snapshot")
	}
	return errors.Wrap(zw.Close(), "transfer: flush gzip")
}

// Marshal is Encode into a byte slice.
func Marshal(snap *Snapshot, compress bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, snap, compress); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func maybeDecompress(data []byte) ([]byte, error) {
	if !IsGzip(data) {
		return data, nil
	}
	zr, err := archives.Gz{}.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
