package utils

import (
	"crypto/rand"
	"fmt"

	"parking-system/internal/status"

	"golang.org/x/crypto/bcrypt"
)

const accessCodeCharset = "0123456789"

// GenerateAccessCode returns a random numeric code of the given length,
// e.g. the 6-digit PIN a driver shows at the parking site.
func GenerateAccessCode(length int) (string, error) {
	code := make([]byte, length)
	if _, err := rand.Read(code); err != nil {
		return "", err
	}
	for i := 0; i < length; i++ {
		code[i] = accessCodeCharset[int(code[i])%len(accessCodeCharset)]
	}
	return string(code), nil
}

// HashAccessCode produces the at-rest form of an access code. The plaintext
// is handed to the driver once and never stored.
func HashAccessCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash access code: %w", err)
	}
	return string(hash), nil
}

// CheckAccessCode compares a presented code against the stored hash.
func CheckAccessCode(hash, code string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)); err != nil {
		return status.ErrAccessCodeWrong
	}
	return nil
}
