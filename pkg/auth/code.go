package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeAlphabet is used for captcha answers and e-mailed codes. 0, O, 1 and I
// are left out so codes survive being read off a screen or an image.
const CodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// GenerateCode returns a random code of the given length drawn uniformly from CodeAlphabet
func GenerateCode(length int) (string, error) {
	if length < 1 {
		return "", fmt.Errorf("code length must be positive, got %d", length)
	}

	max := big.NewInt(int64(len(CodeAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate code: %w", err)
		}
		buf[i] = CodeAlphabet[n.Int64()]
	}

	return string(buf), nil
}
