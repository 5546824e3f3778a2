package id

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/google/uuid"
)

// Generate returns a 48-character nanoid using an alphanumeric alphabet (A-Za-z0-9).
// Used for aggregate ids (projects, tasks, workers, branches) where
// sortable/compact ids are preferable to the wire formats the spec
// mandates for envelopes and sessions.
func Generate() string {
	id, err := gonanoid.Generate("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789", 48)
	if err != nil {
		panic(fmt.Sprintf("generate nanoid: %v", err))
	}
	return id
}

// NewUUID returns a UUID v4 string, per the envelope's messageId and
// the session engine's sessionId wire format.
func NewUUID() string {
	return uuid.NewString()
}
