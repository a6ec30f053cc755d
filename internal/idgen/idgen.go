// Package idgen mints the short URL-safe reference codes stamped on records,
// backed by nanoid. The activity store assigns an "act-" code at creation.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet is the character set for the random portion of a code.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters after the prefix.
var Length = 10

// GenerateWithPrefix returns a new reference code: the prefix followed by
// Length random characters from Alphabet.
func GenerateWithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
