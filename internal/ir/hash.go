package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed checksums.
// Version suffix enables future algorithm migration.
const (
	DomainSchemaStep = "datamgr/schema-step/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Checksum computes the domain-separated SHA-256 of the canonical encoding
// of v.
func Checksum(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("checksum %s: %w", domain, err)
	}
	return hashWithDomain(domain, canonical), nil
}
