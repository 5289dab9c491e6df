package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// SignupChallenge is the canonical string an agent signs to prove key ownership.
func SignupChallenge(callbackID, publicKey string) string {
	return fmt.Sprintf("Signed message for %s, %s", callbackID, publicKey)
}

// ReplyChallenge is the canonical string an agent signs when answering an assignment.
func ReplyChallenge(callbackID string) string {
	return fmt.Sprintf("Replying %s", callbackID)
}

// NewCallbackID returns a fresh time-ordered correlation token.
// uuid.NewV7 serialises its monotonic state internally, so concurrent callers
// never receive the same id.
func NewCallbackID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the system random source does
		return uuid.New().String()
	}
	return id.String()
}
