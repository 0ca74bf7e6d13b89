package signature

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// SecretPrefix marks producer signing secrets.
const SecretPrefix = "bksec_"

// GenerateSecret creates a cryptographically random signing secret.
// Format: "bksec_" + 32 bytes hex = 70 characters total.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("signature: generate secret: %w", err)
	}
	return SecretPrefix + hex.EncodeToString(b), nil
}
