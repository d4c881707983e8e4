package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/beatvault/beatvault-backend/pkg/config"
	"golang.org/x/crypto/argon2"
)

var (
	ErrMalformedHash   = errors.New("malformed password hash")
	ErrWeakPassword    = errors.New("password must be at least 8 characters and include an uppercase letter and a special character")
	minPasswordLength  = 8
	encodedHashPrefix  = "$argon2id$"
	encodedHashPartLen = 6
)

// HashPassword derives an argon2id hash encoded in the PHC string format:
// $argon2id$v=19$m=<kb>,t=<time>,p=<threads>$<salt>$<key>.
func HashPassword(password string, cfg config.PasswordConfig) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password is required")
	}
	if cfg.ArgonMemoryKB <= 0 || cfg.ArgonTime <= 0 || cfg.ArgonParallelism <= 0 || cfg.ArgonSaltLen <= 0 || cfg.ArgonKeyLen <= 0 {
		return "", fmt.Errorf("invalid argon2 parameters")
	}

	salt := make([]byte, cfg.ArgonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, uint32(cfg.ArgonTime), uint32(cfg.ArgonMemoryKB), uint8(cfg.ArgonParallelism), uint32(cfg.ArgonKeyLen))
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		encodedHashPrefix,
		argon2.Version,
		cfg.ArgonMemoryKB,
		cfg.ArgonTime,
		cfg.ArgonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword reports whether password matches the encoded hash.
func VerifyPassword(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != encodedHashPartLen || !strings.HasPrefix(encoded, encodedHashPrefix) {
		return false, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, ErrMalformedHash
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, ErrMalformedHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, ErrMalformedHash
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false, ErrMalformedHash
	}

	got := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// ValidatePasswordStrength enforces the account password policy.
func ValidatePasswordStrength(password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	var hasUpper, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	if !hasUpper || !hasSpecial {
		return ErrWeakPassword
	}
	return nil
}
