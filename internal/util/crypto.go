package util

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

const tokenBytes = 32

// captureCodeChars matches the original link format: lowercase alphanumeric.
const captureCodeChars = "abcdefghijklmnopqrstuvwxyz0123456789"

func GenerateToken() (string, error) {
	bytes := make([]byte, tokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// GenerateCaptureCode returns an n-character random code from a 36-character
// alphabet, good for a bit over 5 bits of entropy per character.
func GenerateCaptureCode(n int) string {
	chars := []byte(captureCodeChars)
	code := make([]byte, n)
	for i := 0; i < n; i++ {
		idx, _ := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		code[i] = chars[idx.Int64()]
	}
	return string(code)
}

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

func MaskCode(code string) string {
	if len(code) <= 4 {
		return "****"
	}
	return code[:4] + "-****"
}
