package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// GenerateCode returns a uniformly random numeric code of the given width.
func GenerateCode(length int) (string, error) {
	digits := make([]byte, length)
	for i := 0; i < length; i++ {
		num, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate otp digit: %w", err)
		}
		digits[i] = byte('0' + num.Int64())
	}
	return string(digits), nil
}

// ValidCode reports whether code is exactly length ASCII digits.
func ValidCode(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
