// Package id generates prefixed identifiers for submissions and hub connections.
package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// alphabet avoids '-' and '_' so the prefix separator stays unambiguous.
const (
	alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	size     = 16
)

// Well-known prefixes.
const (
	PrefixSubmission = "sub"
	PrefixConnection = "conn"
)

// Generate returns "<prefix>_<16 alphanumeric chars>".
func Generate(prefix string) (string, error) {
	s, err := gonanoid.Generate(alphabet, size)
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "_" + s, nil
}
