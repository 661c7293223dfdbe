package http

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/relayhub/internal/core"
)

// HubHandlers exposes hub operations over HTTP.
type HubHandlers struct {
	hub *core.Hub
	log *zerolog.Logger
}

// NewHubHandlers creates a new hub handlers instance.
func NewHubHandlers(hub *core.Hub, logger *zerolog.Logger) *HubHandlers {
	return &HubHandlers{hub: hub, log: logger}
}

// InitializeRequest represents the initialize request body.
type InitializeRequest struct {
	MinStake        string `json:"min_stake"`
	ChallengePeriod uint64 `json:"challenge_period"`
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	ChainID uint32 `json:"chain_id"`
	Target  string `json:"target" binding:"required"`
	Data    string `json:"data"`
	Value   string `json:"value" binding:"required"`
}

// SendMessageResponse carries the assigned message id.
type SendMessageResponse struct {
	MessageID uint64 `json:"message_id"`
}

// ProofRequest carries a delivery or fraud proof.
type ProofRequest struct {
	Proof string `json:"proof" binding:"required"`
}

// StakeRequest represents the register relayer request body.
type StakeRequest struct {
	Value string `json:"value" binding:"required"`
}

// AddChainRequest represents the add chain request body.
type AddChainRequest struct {
	ChainID  uint32 `json:"chain_id"`
	Receiver string `json:"receiver" binding:"required"`
	BaseFee  string `json:"base_fee"`
}

// WithdrawRequest represents the treasury withdrawal request body.
type WithdrawRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// TransferOwnershipRequest represents the ownership transfer request body.
type TransferOwnershipRequest struct {
	NewOwner string `json:"new_owner" binding:"required"`
}

// HubResponse describes hub-wide state.
type HubResponse struct {
	Initialized     bool   `json:"initialized"`
	Owner           string `json:"owner,omitempty"`
	MinStake        string `json:"min_stake"`
	ChallengePeriod uint64 `json:"challenge_period"`
	TreasuryBalance string `json:"treasury_balance"`
	MessageCount    uint64 `json:"message_count"`
	EnabledChains   uint64 `json:"enabled_chains"`
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID               uint64 `json:"id"`
	Sender           string `json:"sender"`
	DestinationChain uint32 `json:"destination_chain"`
	Target           string `json:"target"`
	Data             string `json:"data"`
	CreatedAt        uint64 `json:"created_at"`
	FeePaid          string `json:"fee_paid"`
	Status           string `json:"status"`
	Relayer          string `json:"relayer,omitempty"`
}

// ChallengeResponse represents a challenge record.
type ChallengeResponse struct {
	MessageID  uint64 `json:"message_id"`
	Challenger string `json:"challenger,omitempty"`
	Deadline   uint64 `json:"deadline"`
	Resolved   bool   `json:"resolved"`
}

// ChainResponse represents a chain configuration.
type ChainResponse struct {
	ChainID  uint32 `json:"chain_id"`
	Enabled  bool   `json:"enabled"`
	Receiver string `json:"receiver,omitempty"`
	BaseFee  string `json:"base_fee"`
}

// FeeResponse carries a chain's base fee.
type FeeResponse struct {
	ChainID uint32 `json:"chain_id"`
	BaseFee string `json:"base_fee"`
}

// RelayerResponse represents relayer info.
type RelayerResponse struct {
	Address      string `json:"address"`
	Active       bool   `json:"active"`
	Stake        string `json:"stake"`
	TotalRelayed uint64 `json:"total_relayed"`
	Successful   uint64 `json:"successful"`
	Slashed      uint64 `json:"slashed"`
}

// PayoutResponse carries the total credited to an address.
type PayoutResponse struct {
	Address string `json:"address"`
	Total   string `json:"total"`
}

// ==== Reads ====

// Info returns hub-wide state.
// GET /api/hub
func (h *HubHandlers) Info(c *gin.Context) {
	info, err := h.hub.Info(c.Request.Context())
	if err != nil {
		writeHubError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, hubResponse(info))
}

// GetMessage returns a message.
// GET /api/messages/:id
func (h *HubHandlers) GetMessage(c *gin.Context) {
	id, err := parseMessageID(c.Param("id"))
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	msg, err := h.hub.Message(c.Request.Context(), id)
	if err != nil {
		writeHubError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse(msg))
}

// GetChallenge returns the challenge record of a relayed message.
// GET /api/messages/:id/challenge
func (h *HubHandlers) GetChallenge(c *gin.Context) {
	id, err := parseMessageID(c.Param("id"))
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	ch, err := h.hub.Challenge(c.Request.Context(), id)
	if err != nil {
		writeHubError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, challengeResponse(ch))
}

// GetChain returns a chain configuration.
// GET /api/chains/:id
func (h *HubHandlers) GetChain(c *gin.Context) {
	chainID, err := parseChainID(c.Param("id"))
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	chain, err := h.hub.Chain(c.Request.Context(), chainID)
	if err != nil {
		writeHubError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, chainResponse(chain))
}

// GetChainFee returns a chain's base fee.
// GET /api/chains/:id/fee
func (h *HubHandlers) GetChainFee(c *gin.Context) {
	chainID, err := parseChainID(c.Param("id"))
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	fee, err := h.hub.ChainFee(c.Request.Context(), chainID)
	if err != nil {
		writeHubError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, FeeResponse{ChainID: chainID, BaseFee: amountString(fee)})
}

// GetRelayer returns relayer info.
// GET /api/relayers/:address
func (h *HubHandlers) GetRelayer(c *gin.Context) {
	addr, err := parseAddress(c.Param("address"))
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	info, err := h.hub.Relayer(c.Request.Context(), addr)
	if err != nil {
		writeHubError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, relayerResponse(info))
}

// GetPayouts returns the total credited to an address.
// GET /api/payouts/:address
func (h *HubHandlers) GetPayouts(c *gin.Context) {
	addr, err := parseAddress(c.Param("address"))
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	total, err := h.hub.PayoutTotal(c.Request.Context(), addr)
	if err != nil {
		writeHubError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, PayoutResponse{Address: addr.Hex(), Total: amountString(total)})
}

// ==== Writes (caller from token) ====

// bindCaller resolves the caller and decodes the body into req when non-nil.
func (h *HubHandlers) bindCaller(c *gin.Context, req any) (common.Address, bool) {
	caller, ok := callerFrom(c)
	if !ok {
		h.log.Error().Msg("caller not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return common.Address{}, false
	}
	if req != nil {
		if err := c.ShouldBindJSON(req); err != nil {
			h.log.Debug().Err(err).Str("path", c.FullPath()).Msg("invalid request body")
			writeBadRequest(c, "invalid request body")
			return common.Address{}, false
		}
	}
	return caller, true
}

func (h *HubHandlers) respond(c *gin.Context, err error) {
	if err != nil {
		writeHubError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Initialize makes the caller the owner.
// POST /api/initialize
func (h *HubHandlers) Initialize(c *gin.Context) {
	var req InitializeRequest
	caller, ok := h.bindCaller(c, &req)
	if !ok {
		return
	}
	minStake, err := parseAmount(req.MinStake)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	h.respond(c, h.hub.Initialize(c.Request.Context(), caller, minStake, req.ChallengePeriod))
}

// SendMessage submits a message.
// POST /api/messages
func (h *HubHandlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	caller, ok := h.bindCaller(c, &req)
	if !ok {
		return
	}
	target, err := parseAddress(req.Target)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	data, err := parseHex(req.Data)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}

	id, err := h.hub.SendMessage(c.Request.Context(), caller, req.ChainID, target, data, value)
	if err != nil {
		writeHubError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, SendMessageResponse{MessageID: id})
}

// proofCommand decodes :id and the proof body shared by confirm and challenge.
func (h *HubHandlers) proofCommand(c *gin.Context) (common.Address, uint64, []byte, bool) {
	var req ProofRequest
	caller, ok := h.bindCaller(c, &req)
	if !ok {
		return common.Address{}, 0, nil, false
	}
	id, err := parseMessageID(c.Param("id"))
	if err != nil {
		writeBadRequest(c, err.Error())
		return common.Address{}, 0, nil, false
	}
	proof, err := parseHex(req.Proof)
	if err != nil {
		writeBadRequest(c, err.Error())
		return common.Address{}, 0, nil, false
	}
	return caller, id, proof, true
}

// ConfirmDelivery claims delivery of a pending message.
// POST /api/messages/:id/confirm
func (h *HubHandlers) ConfirmDelivery(c *gin.Context) {
	caller, id, proof, ok := h.proofCommand(c)
	if !ok {
		return
	}
	h.respond(c, h.hub.ConfirmDelivery(c.Request.Context(), caller, id, proof))
}

// ChallengeMessage disputes a relayed message.
// POST /api/messages/:id/challenge
func (h *HubHandlers) ChallengeMessage(c *gin.Context) {
	caller, id, proof, ok := h.proofCommand(c)
	if !ok {
		return
	}
	h.respond(c, h.hub.ChallengeMessage(c.Request.Context(), caller, id, proof))
}

// FinalizeMessage confirms a relayed message after its window.
// POST /api/messages/:id/finalize
func (h *HubHandlers) FinalizeMessage(c *gin.Context) {
	caller, ok := h.bindCaller(c, nil)
	if !ok {
		return
	}
	id, err := parseMessageID(c.Param("id"))
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	h.respond(c, h.hub.FinalizeMessage(c.Request.Context(), caller, id))
}

// RegisterRelayer deposits stake.
// POST /api/relayers/register
func (h *HubHandlers) RegisterRelayer(c *gin.Context) {
	var req StakeRequest
	caller, ok := h.bindCaller(c, &req)
	if !ok {
		return
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	h.respond(c, h.hub.RegisterRelayer(c.Request.Context(), caller, value))
}

// ExitRelayer returns the caller's stake.
// POST /api/relayers/exit
func (h *HubHandlers) ExitRelayer(c *gin.Context) {
	caller, ok := h.bindCaller(c, nil)
	if !ok {
		return
	}
	h.respond(c, h.hub.ExitRelayer(c.Request.Context(), caller))
}

// AddChain enables or reconfigures a chain.
// POST /api/chains
func (h *HubHandlers) AddChain(c *gin.Context) {
	var req AddChainRequest
	caller, ok := h.bindCaller(c, &req)
	if !ok {
		return
	}
	receiver, err := parseAddress(req.Receiver)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	baseFee, err := parseAmount(req.BaseFee)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	h.respond(c, h.hub.AddChain(c.Request.Context(), caller, req.ChainID, receiver, baseFee))
}

// DisableChain disables a chain.
// POST /api/chains/:id/disable
func (h *HubHandlers) DisableChain(c *gin.Context) {
	caller, ok := h.bindCaller(c, nil)
	if !ok {
		return
	}
	chainID, err := parseChainID(c.Param("id"))
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	h.respond(c, h.hub.DisableChain(c.Request.Context(), caller, chainID))
}

// WithdrawFees pays treasury funds to the owner.
// POST /api/treasury/withdraw
func (h *HubHandlers) WithdrawFees(c *gin.Context) {
	var req WithdrawRequest
	caller, ok := h.bindCaller(c, &req)
	if !ok {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	h.respond(c, h.hub.WithdrawFees(c.Request.Context(), caller, amount))
}

// TransferOwnership hands the owner role over.
// POST /api/owner
func (h *HubHandlers) TransferOwnership(c *gin.Context) {
	var req TransferOwnershipRequest
	caller, ok := h.bindCaller(c, &req)
	if !ok {
		return
	}
	newOwner, err := parseAddress(req.NewOwner)
	if err != nil {
		writeBadRequest(c, err.Error())
		return
	}
	h.respond(c, h.hub.TransferOwnership(c.Request.Context(), caller, newOwner))
}
