package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("storage: invalid download token")
	ErrExpiredToken = errors.New("storage: download token expired")
)

// SignedURLSigner issues HMAC-SHA256 tokens that grant time-limited read
// access to one stored file. A token is bound to a scope so a token minted
// for one purpose cannot be replayed against another.
//
// Token layout: base64url(scope "\n" unix-expiry "\n" path) "." base64url(mac)
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign returns a token for relPath within scope and its expiry.
func (s *SignedURLSigner) Sign(scope, relPath string) (string, time.Time, error) {
	switch {
	case len(s.secret) == 0:
		return "", time.Time{}, errors.New("storage: signing secret missing")
	case scope == "" || relPath == "":
		return "", time.Time{}, errors.New("storage: scope and path required")
	case strings.ContainsRune(scope, '\n') || strings.ContainsRune(relPath, '\n'):
		return "", time.Time{}, errors.New("storage: scope and path must be single-line")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	payload := scope + "\n" + strconv.FormatInt(expiresAt.Unix(), 10) + "\n" + relPath
	token := base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + base64.RawURLEncoding.EncodeToString(s.mac(payload))
	return token, expiresAt, nil
}

// Verify checks token against scope and returns the path it grants.
func (s *SignedURLSigner) Verify(scope, token string) (string, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok {
		return "", ErrInvalidToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidToken
	}
	got, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil || !hmac.Equal(got, s.mac(string(raw))) {
		return "", ErrInvalidToken
	}

	parts := strings.SplitN(string(raw), "\n", 3)
	if len(parts) != 3 || parts[0] != scope {
		return "", ErrInvalidToken
	}
	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", ErrInvalidToken
	}
	if s.now().After(time.Unix(exp, 0)) {
		return "", ErrExpiredToken
	}
	return parts[2], nil
}

func (s *SignedURLSigner) mac(payload string) []byte {
	h := hmac.New(sha256.New, s.secret)
	_, _ = h.Write([]byte(payload))
	return h.Sum(nil)
}
