package proof

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/relayhub/internal/store"
)

// Attester accepts proofs signed by one of a fixed set of attester keys.
type Attester struct {
	attesters map[common.Address]struct{}
	log       *zerolog.Logger
}

// NewAttester creates a verifier trusting the given addresses. logger may be nil.
func NewAttester(attesters []common.Address, logger *zerolog.Logger) *Attester {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	set := make(map[common.Address]struct{}, len(attesters))
	for _, a := range attesters {
		set[a] = struct{}{}
	}
	return &Attester{attesters: set, log: logger}
}

// VerifyExecution reports whether proof is an execution attestation for msg.
func (a *Attester) VerifyExecution(msg *store.Message, proof []byte) bool {
	return a.verify(ExecutionDomain, msg, proof)
}

// VerifyFraud reports whether proof is a fraud attestation for msg.
func (a *Attester) VerifyFraud(msg *store.Message, proof []byte) bool {
	return a.verify(FraudDomain, msg, proof)
}

func (a *Attester) verify(domain []byte, msg *store.Message, proof []byte) bool {
	signer, err := Recover(domain, Digest(msg), proof)
	if err != nil {
		a.log.Debug().Err(err).Uint64("message_id", msg.ID).Msg("proof rejected")
		return false
	}
	if _, ok := a.attesters[signer]; !ok {
		a.log.Debug().Str("signer", signer.Hex()).Uint64("message_id", msg.ID).Msg("proof signed by unknown attester")
		return false
	}
	return true
}
