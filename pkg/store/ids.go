package store

import (
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewID generates a record identifier unique for the process lifetime.
// The millisecond prefix keeps identifiers roughly sortable by creation time.
func NewID() (string, error) {
	suffix, err := gonanoid.Generate(idAlphabet, 10)
	if err != nil {
		return "", fmt.Errorf("failed to generate id suffix: %w", err)
	}
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), suffix), nil
}
