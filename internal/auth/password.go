package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes plain with bcrypt. A cost outside bcrypt's range falls
// back to bcrypt.DefaultCost.
func HashPassword(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// ComparePassword checks plain against hash in constant time. A mismatch
// yields ErrInvalidCredentials.
func ComparePassword(hash, plain string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrInvalidCredentials
	}
	return fmt.Errorf("compare password: %w", err)
}

// dummyHasher holds a throwaway hash at the configured cost so that unknown
// emails cannot be told apart from wrong passwords by latency.
type dummyHasher struct {
	once sync.Once
	cost int
	hash []byte
}

func (d *dummyHasher) burnCompare(plain string) {
	d.once.Do(func() {
		h, err := HashPassword("not-a-real-password", d.cost)
		if err == nil {
			d.hash = []byte(h)
		}
	})
	_ = bcrypt.CompareHashAndPassword(d.hash, []byte(plain))
}
