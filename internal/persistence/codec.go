package persistence

import (
	"bytes"
	"encoding/gob"
	"time"
)

// EncodeValue serializes v with encoding/gob. A nil or empty value
// encodes to nil so empty columns stay NULL.
func EncodeValue[T any](v []T) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeValue reverses EncodeValue.
func DecodeValue[T any](data []byte) ([]T, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v []T
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func encodeTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func decodeTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
