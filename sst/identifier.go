package sst

import "github.com/google/uuid"

// NewIdentifier returns a fresh, globally unique blob identifier for a new
// SST file (and, by convention, its bloom sidecar at identifier+".bloom").
func NewIdentifier() string {
	return uuid.NewString()
}
