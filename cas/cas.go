// Package cas provides content identity for the engine: BLAKE3 digests and
// canonical JSON, used to key anchors, rule events and state buckets.
package cas

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"sort"

	"lukechampine.com/blake3"
)

// DigestSize is the size in bytes of a Digest.
const DigestSize = 32

// Digest is a BLAKE3-256 content digest. It is comparable and can be used as
// a map key.
type Digest [DigestSize]byte

// Hex returns the digest in hexadecimal.
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// Short returns the first 8 hex characters, for logs.
func (d Digest) Short() string {
	return hex.EncodeToString(d[:4])
}

// IsZero reports whether d is the zero digest.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Sum computes the digest of data.
func Sum(data []byte) Digest {
	return Digest(blake3.Sum256(data))
}

// Hasher builds a digest incrementally from typed fields. Every field is
// length- or tag-prefixed so that distinct field sequences never collide by
// concatenation.
type Hasher struct {
	h   *blake3.Hasher
	buf [binary.MaxVarintLen64]byte
}

// NewHasher returns a fresh Hasher.
func NewHasher() *Hasher {
	return &Hasher{h: blake3.New(DigestSize, nil)}
}

// Int writes a signed integer.
func (h *Hasher) Int(v int) *Hasher {
	n := binary.PutVarint(h.buf[:], int64(v))
	h.h.Write(h.buf[:n])
	return h
}

// String writes a length-prefixed string.
func (h *Hasher) String(s string) *Hasher {
	h.Int(len(s))
	h.h.Write([]byte(s))
	return h
}

// Digest writes another digest.
func (h *Hasher) Digest(d Digest) *Hasher {
	h.h.Write(d[:])
	return h
}

// Bytes writes a length-prefixed byte slice.
func (h *Hasher) Bytes(b []byte) *Hasher {
	h.Int(len(b))
	h.h.Write(b)
	return h
}

// Sum returns the digest of everything written so far.
func (h *Hasher) Sum() Digest {
	var d Digest
	copy(d[:], h.h.Sum(nil))
	return d
}

// CanonicalJSON converts a value to canonical JSON (stable key ordering).
func CanonicalJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var obj interface{}
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}

	return canonicalMarshal(obj)
}

// SumJSON computes the digest of the canonical JSON form of v.
func SumJSON(v interface{}) (Digest, error) {
	data, err := CanonicalJSON(v)
	if err != nil {
		return Digest{}, err
	}
	return Sum(data), nil
}

func canonicalMarshal(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		return marshalSortedMap(val)
	case []interface{}:
		return marshalArray(val)
	default:
		return json.Marshal(v)
	}
}

func marshalSortedMap(m map[string]interface{}) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := canonicalMarshal(m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalArray(arr []interface{}) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, v := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		valBytes, err := canonicalMarshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
