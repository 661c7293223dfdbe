package http

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"

	"github.com/vovakirdan/relayhub/internal/core"
	"github.com/vovakirdan/relayhub/internal/proto"
	"github.com/vovakirdan/relayhub/internal/store"
)

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

// parseAmount reads a base-10 amount. Empty means zero.
func parseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return v, nil
}

// parseHex reads 0x-prefixed bytes. Empty means no bytes.
func parseHex(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}

func parseMessageID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid message id %q", s)
	}
	return id, nil
}

func parseChainID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid chain id %q", s)
	}
	return uint32(id), nil
}

func amountString(a *uint256.Int) string {
	if a == nil {
		return "0"
	}
	return a.Dec()
}

// optionalAddress renders the zero address as empty.
func optionalAddress(a common.Address) string {
	if a == (common.Address{}) {
		return ""
	}
	return a.Hex()
}

func hubResponse(info *core.HubInfo) HubResponse {
	return HubResponse{
		Initialized:     info.Initialized,
		Owner:           optionalAddress(info.Owner),
		MinStake:        amountString(info.MinStake),
		ChallengePeriod: info.ChallengePeriod,
		TreasuryBalance: amountString(info.TreasuryBalance),
		MessageCount:    info.MessageCount,
		EnabledChains:   info.EnabledChains,
	}
}

func messageResponse(msg *store.Message) MessageResponse {
	return MessageResponse{
		ID:               msg.ID,
		Sender:           msg.Sender.Hex(),
		DestinationChain: msg.DestinationChain,
		Target:           msg.Target.Hex(),
		Data:             hexutil.Encode(msg.Data),
		CreatedAt:        msg.CreatedAt,
		FeePaid:          amountString(msg.FeePaid),
		Status:           msg.Status.String(),
		Relayer:          optionalAddress(msg.Relayer),
	}
}

func challengeResponse(ch *store.Challenge) ChallengeResponse {
	return ChallengeResponse{
		MessageID:  ch.MessageID,
		Challenger: optionalAddress(ch.Challenger),
		Deadline:   ch.Deadline,
		Resolved:   ch.Resolved,
	}
}

func chainResponse(chain *store.ChainConfig) ChainResponse {
	return ChainResponse{
		ChainID:  chain.ChainID,
		Enabled:  chain.Enabled,
		Receiver: optionalAddress(chain.Receiver),
		BaseFee:  amountString(chain.BaseFee),
	}
}

func relayerResponse(info *store.RelayerInfo) RelayerResponse {
	return RelayerResponse{
		Address:      info.Address.Hex(),
		Active:       info.Active,
		Stake:        amountString(info.Stake),
		TotalRelayed: info.TotalRelayed,
		Successful:   info.Successful,
		Slashed:      info.Slashed,
	}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	ev := proto.HubEvent{
		Kind:      event.Kind.String(),
		MessageID: event.MessageID,
		ChainID:   event.ChainID,
		Account:   optionalAddress(event.Account),
		Target:    optionalAddress(event.Target),
		Deadline:  event.Deadline,
		Timestamp: event.Timestamp,
	}
	if event.Amount != nil {
		ev.Amount = event.Amount.Dec()
	}
	if len(event.Data) > 0 {
		ev.Data = hexutil.Encode(event.Data)
	}

	return proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: ev.Kind,
		Data:  ev,
	}
}
