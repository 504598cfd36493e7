package xid

import "github.com/google/uuid"

// New returns a random identifier such as "sale-7c9e6679-7425-40de-944b-e07fc1f90ae7".
func New(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
