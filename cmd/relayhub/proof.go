package main

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/relayhub/internal/proof"
	"github.com/vovakirdan/relayhub/internal/store"
)

type proofFlags struct {
	id        uint64
	sender    string
	chain     uint32
	target    string
	data      string
	createdAt uint64
	fee       string
	key       string
	kind      string
}

// newProofCmd prints a message digest and, given an attester key, the
// matching execution or fraud proof.
func newProofCmd() *cobra.Command {
	var f proofFlags

	cmd := &cobra.Command{
		Use:   "proof",
		Short: "compute a message digest and optionally sign a proof for it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			msg, err := f.message()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "digest: %s\n", proof.Digest(msg).Hex())
			if f.key == "" {
				return nil
			}

			sig, err := f.sign(msg)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s proof: %s\n", f.kind, hexutil.Encode(sig))
			return nil
		},
	}

	fl := cmd.Flags()
	fl.Uint64Var(&f.id, "id", 0, "message id")
	fl.StringVar(&f.sender, "sender", "", "sender address")
	fl.Uint32Var(&f.chain, "chain", 0, "destination chain id")
	fl.StringVar(&f.target, "target", "", "target address")
	fl.StringVar(&f.data, "data", "", "0x-hex payload")
	fl.Uint64Var(&f.createdAt, "created-at", 0, "creation timestamp (unix seconds)")
	fl.StringVar(&f.fee, "fee", "0", "fee paid, decimal")
	fl.StringVar(&f.key, "key", "", "hex attester private key")
	fl.StringVar(&f.kind, "kind", "execution", "proof kind: execution or fraud")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("sender")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func (f *proofFlags) message() (*store.Message, error) {
	if !common.IsHexAddress(f.sender) {
		return nil, fmt.Errorf("invalid sender %q", f.sender)
	}
	if !common.IsHexAddress(f.target) {
		return nil, fmt.Errorf("invalid target %q", f.target)
	}
	var data []byte
	if f.data != "" {
		var err error
		if data, err = hexutil.Decode(f.data); err != nil {
			return nil, fmt.Errorf("invalid data: %w", err)
		}
	}
	fee, err := uint256.FromDecimal(f.fee)
	if err != nil {
		return nil, fmt.Errorf("invalid fee %q: %w", f.fee, err)
	}

	return &store.Message{
		ID:               f.id,
		Sender:           common.HexToAddress(f.sender),
		DestinationChain: f.chain,
		Target:           common.HexToAddress(f.target),
		Data:             data,
		CreatedAt:        f.createdAt,
		FeePaid:          fee,
	}, nil
}

func (f *proofFlags) sign(msg *store.Message) ([]byte, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(f.key, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid key: %w", err)
	}

	switch f.kind {
	case "execution":
		return proof.SignExecution(key, msg)
	case "fraud":
		return proof.SignFraud(key, msg)
	default:
		return nil, fmt.Errorf("unknown proof kind %q", f.kind)
	}
}
