package config

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/sanchxt/yoop-sub002/yerr"
)

// HashPIN bcrypt-hashes a user PIN for storage in security.pin_hash.
func HashPIN(pin string) (string, error) {
	if pin == "" {
		return "", yerr.New(yerr.KindInvalidConfig, "pin must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", yerr.Wrap(yerr.KindInternal, "failed to hash pin", err)
	}
	return string(hash), nil
}

// VerifyPIN reports whether pin matches the bcrypt hash stored in
// security.pin_hash.
func VerifyPIN(hash, pin string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}
