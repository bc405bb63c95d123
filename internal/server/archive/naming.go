package archive

import (
	"fmt"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	ExtJSON     = ".json"
	ExtJSONZstd = ".json.zst"

	stampLayout = "2006-01-02T15:04:05.000Z"
)

// SnapshotName derives the object name from the export time, e.g.
// chat-backup-2026-10-19T08-30-00-000Z.json.
func SnapshotName(prefix string, at time.Time, compressed bool) string {
	stamp := at.UTC().Format(stampLayout)
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	ext := ExtJSON
	if compressed {
		ext = ExtJSONZstd
	}
	return fmt.Sprintf("%s-%s%s", prefix, stamp, ext)
}

// IsSnapshotName reports whether name was produced by SnapshotName with
// this prefix, regardless of whether its timestamp parses.
func IsSnapshotName(prefix, name string) bool {
	if !strings.HasPrefix(name, prefix+"-") {
		return false
	}
	return strings.HasSuffix(name, ExtJSON) || strings.HasSuffix(name, ExtJSONZstd)
}

// ParseSnapshotTime recovers the export time encoded by SnapshotName.
func ParseSnapshotTime(prefix, name string) (time.Time, bool) {
	if !IsSnapshotName(prefix, name) {
		return time.Time{}, false
	}
	stamp := strings.TrimPrefix(name, prefix+"-")
	stamp = strings.TrimSuffix(strings.TrimSuffix(stamp, ExtJSONZstd), ExtJSON)
	if len(stamp) != len(stampLayout) {
		return time.Time{}, false
	}

	b := []byte(stamp)
	b[13], b[16], b[19] = ':', ':', '.'
	t, err := time.Parse(stampLayout, string(b))
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// Compress encodes a snapshot payload with zstd.
func Compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data)/4)), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
