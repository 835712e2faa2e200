package sources

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

func hmacSHA256(secret string, data []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(data)
	return mac.Sum(nil)
}

// verifyBase64Signature checks a "sha256=<base64>" style header (Typeform)
// against an HMAC-SHA256 of the raw body.
func verifyBase64Signature(secret string, body []byte, header string) error {
	header = strings.TrimPrefix(header, "sha256=")
	got, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return fmt.Errorf("%w: undecodable signature", ErrSignature)
	}
	if !hmac.Equal(got, hmacSHA256(secret, body)) {
		return ErrSignature
	}
	return nil
}

// verifyTimestampedSignature checks a "t=<ts>,v1=<hex>" style header
// (Calendly) where the MAC covers "<ts>.<body>".
func verifyTimestampedSignature(secret string, body []byte, header string) error {
	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			v1 = v
		}
	}
	if ts == "" || v1 == "" {
		return fmt.Errorf("%w: missing signature components", ErrSignature)
	}
	got, err := hex.DecodeString(v1)
	if err != nil {
		return fmt.Errorf("%w: undecodable signature", ErrSignature)
	}
	signed := append([]byte(ts+"."), body...)
	if !hmac.Equal(got, hmacSHA256(secret, signed)) {
		return ErrSignature
	}
	return nil
}
