package scanner

import (
	"encoding/base64"
	"strings"
)

// Redact scrubs every secret (and its base64 form, which appears in git
// auth headers) from a message before it is logged or persisted.
func Redact(message string, secrets ...string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		message = strings.ReplaceAll(message, secret, "***")
		encoded := base64.StdEncoding.EncodeToString([]byte("x-access-token:" + secret))
		message = strings.ReplaceAll(message, encoded, "***")
	}
	return message
}
