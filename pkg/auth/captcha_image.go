package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"strings"
)

const (
	captchaGlyphWidth = 28
	captchaHeight     = 48
	captchaNoiseLines = 5
)

// RenderCaptcha draws code as a distorted SVG and returns it as a data URI.
// The code itself never appears in the markup as a single string.
func RenderCaptcha(code string) (string, error) {
	if code == "" {
		return "", fmt.Errorf("captcha code is empty")
	}

	width := captchaGlyphWidth*len(code) + 20

	var b strings.Builder
	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`, width, captchaHeight, width, captchaHeight)
	b.WriteString(`<rect width="100%" height="100%" fill="#f4f4f4"/>`)

	for i := 0; i < captchaNoiseLines; i++ {
		x1, err := randBetween(0, width)
		if err != nil {
			return "", err
		}
		y1, err := randBetween(0, captchaHeight)
		if err != nil {
			return "", err
		}
		x2, err := randBetween(0, width)
		if err != nil {
			return "", err
		}
		y2, err := randBetween(0, captchaHeight)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#999" stroke-width="1"/>`, x1, y1, x2, y2)
	}

	for i, r := range code {
		rotate, err := randBetween(-25, 25)
		if err != nil {
			return "", err
		}
		dy, err := randBetween(-6, 6)
		if err != nil {
			return "", err
		}
		x := 10 + i*captchaGlyphWidth + captchaGlyphWidth/2
		y := captchaHeight/2 + 10 + dy
		fmt.Fprintf(&b, `<text x="%d" y="%d" font-family="monospace" font-size="28" font-weight="bold" fill="#333" text-anchor="middle" transform="rotate(%d %d %d)">%c</text>`,
			x, y, rotate, x, y, r)
	}

	b.WriteString(`</svg>`)

	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(b.String())), nil
}

// randBetween returns a uniform integer in [lo, hi]
func randBetween(lo, hi int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(hi-lo+1)))
	if err != nil {
		return 0, fmt.Errorf("failed to render captcha: %w", err)
	}
	return lo + int(n.Int64()), nil
}
