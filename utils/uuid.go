package utils

import (
	"github.com/google/uuid"
)

// GenerateID returns a random UUID string for listing and bid identifiers
func GenerateID() string {
	return uuid.New().String()
}
