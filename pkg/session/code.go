package session

import (
	"crypto/rand"
	"math/big"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the length of a session join code.
const CodeLength = 6

// GenerateCode returns a random join code like "K7Q2ZD". Codes only need
// to be unguessable enough that students do not wander into the wrong
// classroom.
func GenerateCode() string {
	buf := make([]byte, CodeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform source is broken
			buf[i] = codeAlphabet[0]
			continue
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf)
}
