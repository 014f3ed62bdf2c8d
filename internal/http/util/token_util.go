package util

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidToken  = errors.New("invalid or expired token")
	ErrMissingSecret = errors.New("token secret is not configured")
)

// TokenSigner issues and verifies compact HMAC owner tokens. The
// transport layer resolves a bearer token to an owner id before the
// service facade is invoked; nothing below the HTTP layer sees
// credentials.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenSigner returns a signer that issues tokens valid for ttl.
func NewTokenSigner(secret []byte, ttl time.Duration) *TokenSigner {
	return &TokenSigner{
		secret: secret,
		ttl:    ttl,
	}
}

// Issue mints a token bound to the provided owner id.
func (s *TokenSigner) Issue(ownerID string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrMissingSecret
	}
	if ownerID == "" {
		return "", errors.New("owner id is required")
	}

	payload := make([]byte, 12) // 4 bytes expiry + 8 random bytes
	expires := uint32(time.Now().Add(s.ttl).Unix())
	binary.BigEndian.PutUint32(payload[:4], expires)
	if _, err := rand.Read(payload[4:]); err != nil {
		return "", err
	}

	ownerEnc := base64.RawURLEncoding.EncodeToString([]byte(ownerID))
	payloadEnc := base64.RawURLEncoding.EncodeToString(payload)
	signature := s.sign(ownerID, payload)
	sigEnc := base64.RawURLEncoding.EncodeToString(signature[:16])
	return fmt.Sprintf("%s.%s.%s", ownerEnc, payloadEnc, sigEnc), nil
}

// Verify checks signature integrity and TTL of the token and returns
// the owner id it was issued for.
func (s *TokenSigner) Verify(token string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrMissingSecret
	}

	parts := strings.SplitN(token, ".", 3)
	if len(parts) != 3 {
		return "", ErrInvalidToken
	}

	ownerRaw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil || len(ownerRaw) == 0 {
		return "", ErrInvalidToken
	}
	ownerID := string(ownerRaw)

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", ErrInvalidToken
	}

	sigProvided, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", ErrInvalidToken
	}
	if len(sigProvided) != 16 {
		return "", ErrInvalidToken
	}

	expected := s.sign(ownerID, payload)
	if !hmac.Equal(sigProvided, expected[:16]) {
		return "", ErrInvalidToken
	}

	if len(payload) < 4 {
		return "", ErrInvalidToken
	}
	expires := binary.BigEndian.Uint32(payload[:4])
	if time.Now().Unix() > int64(expires) {
		return "", ErrInvalidToken
	}

	return ownerID, nil
}

func (s *TokenSigner) sign(ownerID string, payload []byte) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(ownerID))
	mac.Write([]byte("|"))
	mac.Write(payload)
	return mac.Sum(nil)
}
