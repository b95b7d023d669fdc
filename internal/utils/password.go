package utils

import (
	"sync" // One-time dummy hash

	"golang.org/x/crypto/bcrypt" // Password hashing
)

// DefaultCost is the bcrypt cost used for admin accounts
const DefaultCost = bcrypt.DefaultCost

// HashPassword returns bcrypt hash using the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword safely compares bcrypt hash and plain password.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// dummyHash is compared against when no account matches, so unknown and
// known usernames cost the same bcrypt work.
var dummyHash = sync.OnceValue(func() []byte {
	b, err := bcrypt.GenerateFromPassword([]byte("receipt-desk-unknown-account"), DefaultCost)
	if err != nil {
		panic(err)
	}
	return b
})

// RejectPassword runs a full bcrypt comparison and always returns false.
func RejectPassword(plain string) bool {
	_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(plain))
	return false
}
