package session

import (
	"crypto/rand"
	"encoding/base64"
)

// TokenBytes is how many random bytes back an identifier, it encodes to 16
// characters which keeps a prefixed identifier well within the 64 byte
// callback payload limit of chat buttons.
const TokenBytes = 12

// RandomAPI is an abstraction over any code that potentially generates random values.
// This makes mocking/simulation testing much easier.
//
// note: fault injection point
type RandomAPI interface {
	GenerateToken() (string, error)
}

// CryptoRandom generates tokens from crypto/rand.
type CryptoRandom struct{}

func (CryptoRandom) GenerateToken() (string, error) {
	nonce := make([]byte, TokenBytes)
	_, err := rand.Read(nonce)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(nonce), nil
}
