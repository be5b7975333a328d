// Package password hashes and verifies account credentials.
package password

import (
	"fmt"
	"strings"
)

// Algorithm names accepted by New.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// Hasher is a one-way credential hash. Verify returns false with a nil error
// for a wrong password; an error means the hash itself is unusable.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) (bool, error)
}

// New returns a Hasher that hashes with algorithm and verifies hashes of
// either supported algorithm, so switching algorithms keeps existing
// accounts usable.
func New(algorithm string, bcryptCost int) (Hasher, error) {
	b, err := NewBcrypt(bcryptCost)
	if err != nil {
		return nil, err
	}
	a := NewArgon2id(DefaultArgon2Params())

	switch strings.ToLower(algorithm) {
	case AlgorithmBcrypt:
		return &dispatcher{primary: b, bcrypt: b, argon: a}, nil
	case AlgorithmArgon2id:
		return &dispatcher{primary: a, bcrypt: b, argon: a}, nil
	default:
		return nil, fmt.Errorf("unknown password hasher %q", algorithm)
	}
}

type dispatcher struct {
	primary Hasher
	bcrypt  *Bcrypt
	argon   *Argon2id
}

func (d *dispatcher) Hash(plaintext string) (string, error) {
	return d.primary.Hash(plaintext)
}

func (d *dispatcher) Verify(plaintext, hash string) (bool, error) {
	if strings.HasPrefix(hash, argon2Prefix) {
		return d.argon.Verify(plaintext, hash)
	}
	return d.bcrypt.Verify(plaintext, hash)
}
