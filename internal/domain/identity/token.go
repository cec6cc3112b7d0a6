package identity

import (
	"context"
	"errors"

	"github.com/alexedwards/argon2id"
)

// ErrInvalidToken is returned when a bearer token is unknown, expired, or revoked.
var ErrInvalidToken = errors.New("invalid bearer token")

// TokenStore provides access to provisioned bearer tokens.
type TokenStore interface {
	// ListTokens returns all provisioned tokens.
	ListTokens(ctx context.Context) ([]*Token, error)
}

// argon2idParams defines OWASP minimum parameters for Argon2id.
// Memory: 47 MiB, Iterations: 1, Parallelism: 1
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashToken returns an Argon2id hash of the raw token in PHC format.
// Format: $argon2id$v=19$m=48128,t=1,p=1$<salt>$<hash>
func HashToken(raw string) (string, error) {
	return argon2id.CreateHash(raw, argon2idParams)
}

// VerifyToken reports whether raw matches the stored PHC-format hash.
func VerifyToken(raw, storedHash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(raw, storedHash)
}
