// Package proof verifies delivery and fraud proofs for relayed messages.
package proof

import (
	"crypto/ecdsa"
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vovakirdan/relayhub/internal/store"
)

// Domain separators keep an execution attestation from being replayed as a
// fraud attestation and vice versa.
var (
	ExecutionDomain = []byte("relayhub/execution/v1")
	FraudDomain     = []byte("relayhub/fraud/v1")
)

// SignatureLength is the size of a recoverable secp256k1 signature [R || S || V].
const SignatureLength = crypto.SignatureLength

// Digest is the canonical hash of a message's immutable fields:
// keccak256(id ‖ sender ‖ chain ‖ target ‖ keccak256(data) ‖ created_at ‖ fee).
// Integers are big-endian; the fee is 32 bytes.
func Digest(msg *store.Message) common.Hash {
	buf := make([]byte, 0, 8+20+4+20+32+8+32)
	buf = binary.BigEndian.AppendUint64(buf, msg.ID)
	buf = append(buf, msg.Sender.Bytes()...)
	buf = binary.BigEndian.AppendUint32(buf, msg.DestinationChain)
	buf = append(buf, msg.Target.Bytes()...)
	buf = append(buf, crypto.Keccak256(msg.Data)...)
	buf = binary.BigEndian.AppendUint64(buf, msg.CreatedAt)
	var fee [32]byte
	if msg.FeePaid != nil {
		fee = msg.FeePaid.Bytes32()
	}
	buf = append(buf, fee[:]...)
	return crypto.Keccak256Hash(buf)
}

// signingHash binds a digest to a domain.
func signingHash(domain []byte, digest common.Hash) []byte {
	return crypto.Keccak256(domain, digest.Bytes())
}

// SignExecution produces an execution proof for msg.
func SignExecution(key *ecdsa.PrivateKey, msg *store.Message) ([]byte, error) {
	return sign(key, ExecutionDomain, msg)
}

// SignFraud produces a fraud proof for msg.
func SignFraud(key *ecdsa.PrivateKey, msg *store.Message) ([]byte, error) {
	return sign(key, FraudDomain, msg)
}

func sign(key *ecdsa.PrivateKey, domain []byte, msg *store.Message) ([]byte, error) {
	sig, err := crypto.Sign(signingHash(domain, Digest(msg)), key)
	if err != nil {
		return nil, fmt.Errorf("sign proof: %w", err)
	}
	return sig, nil
}

// Recover returns the address that signed digest under domain.
// V may be 0/1 or 27/28.
func Recover(domain []byte, digest common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", SignatureLength, len(sig))
	}
	normalized := make([]byte, SignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(signingHash(domain, digest), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
