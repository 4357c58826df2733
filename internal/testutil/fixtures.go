package testutil

import (
	"fmt"

	"github.com/google/uuid"
)

// RandomEmail returns a unique address under example.com so tests sharing one
// mailbox can tell their messages apart.
func RandomEmail(prefix string) string {
	return fmt.Sprintf("%s-%s@example.com", prefix, uuid.NewString()[:8])
}
