// Package auth holds credential primitives: password hashing with legacy
// SHA-256 compatibility, the username/password policy, and signed session
// tokens.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/loadgate/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// HashScheme identifies how a stored password hash was produced.
type HashScheme int

const (
	SchemeInvalid HashScheme = iota
	// SchemeLegacy is unsalted SHA-256 as 64 lowercase or uppercase hex
	// characters. Still accepted, never produced.
	SchemeLegacy
	// SchemeBcrypt is the adaptive scheme used for every new credential.
	SchemeBcrypt
)

func (s HashScheme) String() string {
	switch s {
	case SchemeLegacy:
		return "legacy-sha256"
	case SchemeBcrypt:
		return "bcrypt"
	default:
		return "invalid"
	}
}

// StoredHash is a password hash parsed once at the storage boundary.
type StoredHash struct {
	Scheme  HashScheme
	Encoded string
}

var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

// ParseHash classifies a stored hash by shape. Unknown shapes parse as
// SchemeInvalid rather than failing.
func ParseHash(stored string) StoredHash {
	if len(stored) == sha256.Size*2 {
		if _, err := hex.DecodeString(stored); err == nil {
			return StoredHash{Scheme: SchemeLegacy, Encoded: strings.ToLower(stored)}
		}
	}
	for _, p := range bcryptPrefixes {
		if strings.HasPrefix(stored, p) {
			return StoredHash{Scheme: SchemeBcrypt, Encoded: stored}
		}
	}
	return StoredHash{Scheme: SchemeInvalid}
}

// Verify reports whether password matches the hash. Malformed hashes
// simply do not match.
func (h StoredHash) Verify(password string) bool {
	switch h.Scheme {
	case SchemeLegacy:
		sum := sha256.Sum256([]byte(password))
		return subtle.ConstantTimeCompare([]byte(hex.EncodeToString(sum[:])), []byte(h.Encoded)) == 1
	case SchemeBcrypt:
		return bcrypt.CompareHashAndPassword([]byte(h.Encoded), []byte(password)) == nil
	default:
		return false
	}
}

// Legacy reports whether the credential still uses the legacy scheme. Used
// for reporting only; legacy hashes are not rewritten on login.
func (h StoredHash) Legacy() bool { return h.Scheme == SchemeLegacy }

// Hasher produces bcrypt hashes at a fixed cost.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher. A cost outside bcrypt's range falls back to
// bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash returns a bcrypt hash of password. The password must already have
// passed Policy.CheckPassword.
func (h *Hasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword is ParseHash(stored).Verify(password).
func VerifyPassword(password, stored string) bool {
	return ParseHash(stored).Verify(password)
}

// LegacyHash computes the legacy SHA-256 form. Only tests and data import
// tooling need it.
func LegacyHash(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,50}$`)

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

// Policy holds registration and password-change rules.
type Policy struct {
	MinPasswordLength int
}

// DefaultPolicy requires at least 8 characters.
var DefaultPolicy = Policy{MinPasswordLength: 8}

// CheckUsername enforces 3-50 characters of [A-Za-z0-9_-].
func (p Policy) CheckUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return common.NewValidationError("username", "must be 3-50 characters of letters, digits, '_' or '-'")
	}
	return nil
}

// CheckPassword enforces the length bounds.
func (p Policy) CheckPassword(password string) error {
	if utf8.RuneCountInString(password) < p.MinPasswordLength {
		return common.NewValidationError("password", "is too short")
	}
	if len(password) > maxPasswordBytes {
		return common.NewValidationError("password", "is too long")
	}
	return nil
}
