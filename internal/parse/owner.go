package parse

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NormalizeOwner returns a player id as 32 lowercase hex digits, accepting
// both the dashed and undashed forms.
func NormalizeOwner(id string) (string, error) {
	u, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", fmt.Errorf("invalid owner id %q: %w", id, err)
	}
	return strings.ReplaceAll(u.String(), "-", ""), nil
}
