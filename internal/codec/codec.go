// Package codec derives short codes from record IDs and back.
//
// Codes are produced with the hashids scheme: a salted, reversible mapping
// from a positive integer to a string over a fixed alphabet, padded to a
// minimum length. Under a fixed salt and alphabet two distinct IDs never
// share a code, and decoding validates that the code re-encodes to itself,
// so foreign input is rejected rather than misread.
package codec

import (
	"fmt"

	"github.com/speps/go-hashids/v2"
)

// DefaultAlphabet is the 62-symbol case-sensitive alphanumeric alphabet.
const DefaultAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Codec encodes record IDs into short codes and decodes them back
type Codec struct {
	h *hashids.HashID
}

// New creates a codec for the given salt, minimum code length and
// alphabet. An empty alphabet selects DefaultAlphabet.
func New(salt string, minLength int, alphabet string) (*Codec, error) {
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}

	data := hashids.NewData()
	data.Salt = salt
	data.MinLength = minLength
	data.Alphabet = alphabet

	h, err := hashids.NewWithData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize hashids: %w", err)
	}
	return &Codec{h: h}, nil
}

// Encode maps a positive record ID to its short code.
func (c *Codec) Encode(id uint) (string, error) {
	if id == 0 {
		return "", fmt.Errorf("id must be positive")
	}
	code, err := c.h.EncodeInt64([]int64{int64(id)})
	if err != nil {
		return "", fmt.Errorf("failed to encode id %d: %w", id, err)
	}
	return code, nil
}

// Decode maps a short code back to the record ID that produced it. The
// second return value is false for malformed or foreign input; garbage
// codes are routine, so they never surface as an error.
func (c *Codec) Decode(code string) (uint, bool) {
	if code == "" {
		return 0, false
	}
	ids, err := c.h.DecodeInt64WithError(code)
	if err != nil || len(ids) != 1 || ids[0] <= 0 {
		return 0, false
	}
	return uint(ids[0]), true
}
