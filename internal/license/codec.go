package license

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Tier is the entitlement level carried inside a license key.
type Tier string

const (
	TierFree  Tier = "free"
	TierBasic Tier = "basic"
	TierPro   Tier = "pro"
)

// Valid reports whether t is one of the known entitlement levels.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierBasic, TierPro:
		return true
	}
	return false
}

const (
	keyPrefix = "VT-"
	groupSize = 4

	ivLen  = 12
	tagLen = 16
	keyLen = 32
)

// payload is the cleartext content of a license key. It exists only
// transiently inside Encode/Decode and is never persisted.
type payload struct {
	Tier    Tier   `json:"tier"`
	Created int64  `json:"created"`
	Random  string `json:"random"`
}

// Codec encodes entitlement tiers into opaque printable license keys using
// AES-256-GCM under a single process-wide key.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a codec from a 32-byte encryption key. A key of any other
// length is a configuration error; callers treat it as fatal at startup.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != keyLen {
		return nil, fmt.Errorf("license: encryption key must be %d bytes, got %d", keyLen, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("license: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("license: init gcm: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// Encode packs a fresh payload for the given tier into a printable key of the
// form VT-XXXX-XXXX-... covering the full IV ‖ tag ‖ ciphertext bytes.
func (c *Codec) Encode(tier Tier) (string, error) {
	if !tier.Valid() {
		return "", fmt.Errorf("license: unknown tier %q", tier)
	}

	random := make([]byte, 8)
	if _, err := rand.Read(random); err != nil {
		return "", fmt.Errorf("license: nonce: %w", err)
	}

	plaintext, err := json.Marshal(payload{
		Tier:    tier,
		Created: time.Now().UnixMilli(),
		Random:  hex.EncodeToString(random),
	})
	if err != nil {
		return "", fmt.Errorf("license: marshal payload: %w", err)
	}

	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("license: iv: %w", err)
	}

	// Seal appends the 16-byte tag to the ciphertext; the wire layout puts
	// the tag between IV and ciphertext, so re-split here.
	sealed := c.aead.Seal(nil, iv, plaintext, nil)
	ciphertext, tag := sealed[:len(sealed)-tagLen], sealed[len(sealed)-tagLen:]

	packed := make([]byte, 0, ivLen+tagLen+len(ciphertext))
	packed = append(packed, iv...)
	packed = append(packed, tag...)
	packed = append(packed, ciphertext...)

	return format(packed), nil
}

// Decode unpacks a license key and returns its tier. The second return is
// false for any malformed or tampered input: wrong prefix, bad hex, short
// packing, tag verification failure or an unparsable payload. It never
// panics past this boundary.
func (c *Codec) Decode(key string) (Tier, bool) {
	trimmed, ok := strings.CutPrefix(strings.TrimSpace(key), keyPrefix)
	if !ok {
		return "", false
	}

	packed, err := hex.DecodeString(strings.ToLower(strings.ReplaceAll(trimmed, "-", "")))
	if err != nil {
		return "", false
	}
	if len(packed) <= ivLen+tagLen {
		return "", false
	}

	iv := packed[:ivLen]
	tag := packed[ivLen : ivLen+tagLen]
	ciphertext := packed[ivLen+tagLen:]

	sealed := make([]byte, 0, len(ciphertext)+tagLen)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", false
	}

	var p payload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return "", false
	}
	if !p.Tier.Valid() {
		return "", false
	}
	return p.Tier, true
}

// format renders packed bytes as VT- plus hyphen-separated groups of four
// uppercase hex characters. Every packed byte is represented: truncating the
// rendering would make the key undecodable.
func format(packed []byte) string {
	hexStr := strings.ToUpper(hex.EncodeToString(packed))

	var b strings.Builder
	b.Grow(len(keyPrefix) + len(hexStr) + len(hexStr)/groupSize)
	b.WriteString(keyPrefix)
	for i := 0; i < len(hexStr); i += groupSize {
		if i > 0 {
			b.WriteByte('-')
		}
		end := i + groupSize
		if end > len(hexStr) {
			end = len(hexStr)
		}
		b.WriteString(hexStr[i:end])
	}
	return b.String()
}
