package platform

import "github.com/google/uuid"

// NewID returns a random identifier, used to tell deploy attempts apart in
// logs and action records.
func NewID() string {
	return uuid.New().String()
}
