// Package prooftest provides proof verifiers for tests.
package prooftest

import "github.com/vovakirdan/relayhub/internal/store"

// MinLength is the shortest proof Placeholder accepts.
const MinLength = 65

// Placeholder accepts any proof at least MinLength bytes long whose first
// byte is non-zero. It does not look at the message.
type Placeholder struct{}

func (Placeholder) VerifyExecution(_ *store.Message, proof []byte) bool {
	return accept(proof)
}

func (Placeholder) VerifyFraud(_ *store.Message, proof []byte) bool {
	return accept(proof)
}

func accept(proof []byte) bool {
	return len(proof) >= MinLength && proof[0] != 0
}

// Valid returns a proof Placeholder accepts.
func Valid() []byte {
	p := make([]byte, MinLength)
	p[0] = 1
	return p
}

// Invalid returns a proof of the right length that Placeholder rejects.
func Invalid() []byte {
	return make([]byte, MinLength)
}
