package password

import (
	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"

	"github.com/alexedwards/argon2id"
)

var argonParams = &argon2id.Params{
	Memory:      64 * 1024, // 64 MiB
	Iterations:  2,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

type Hasher struct {
	pepper string
	params *argon2id.Params
}

func NewHasher(pepper string) *Hasher {
	return &Hasher{pepper: pepper, params: argonParams}
}

// NewHasherWithParams is for tests that cannot afford 64 MiB per hash.
func NewHasherWithParams(pepper string, params *argon2id.Params) *Hasher {
	return &Hasher{pepper: pepper, params: params}
}

func (h *Hasher) Hash(plain string) (string, error) {
	hash, err := argon2id.CreateHash(plain+h.pepper, h.params)
	if err != nil {
		return "", customErrors.WrapInternal(err, "hash password")
	}
	return hash, nil
}

// Verify returns false on mismatch; an error only means the stored hash is unreadable.
func (h *Hasher) Verify(hash, candidate string) (bool, error) {
	ok, err := argon2id.ComparePasswordAndHash(candidate+h.pepper, hash)
	if err != nil {
		return false, customErrors.WrapInternal(err, "compare password")
	}
	return ok, nil
}
