package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/vovakirdan/relayhub/internal/store"
)

var (
	// ErrInvalidCredentials is returned when a login signature does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNonceExpired is returned when a login nonce was used too late.
	ErrNonceExpired = errors.New("login nonce expired")
	// ErrZeroAddress is returned for logins as the zero address.
	ErrZeroAddress = errors.New("zero address")
)

// DefaultNonceTTL bounds how long a login challenge stays valid.
const DefaultNonceTTL = 5 * time.Minute

// Service provides signature-based authentication.
//
// A client asks for a challenge, signs it with its account key (EIP-191
// personal message) and exchanges the signature for a JWT. Each challenge can
// be used once.
type Service struct {
	store     store.LoginStore
	jwtConfig *JWTConfig
	nonceTTL  time.Duration
	now       func() time.Time
}

// NewService creates a new authentication service.
func NewService(loginStore store.LoginStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     loginStore,
		jwtConfig: jwtConfig,
		nonceTTL:  DefaultNonceTTL,
		now:       time.Now,
	}
}

// LoginMessage is the text a caller signs to log in.
func LoginMessage(addr common.Address, nonce string) string {
	return fmt.Sprintf("relayhub login\naddress: %s\nnonce: %s", addr.Hex(), nonce)
}

// Challenge issues a fresh login nonce for addr and returns the message to sign.
func (s *Service) Challenge(ctx context.Context, addr common.Address) (message string, expiresAt time.Time, err error) {
	if addr == (common.Address{}) {
		return "", time.Time{}, ErrZeroAddress
	}

	nonce := uuid.NewString()
	expiresAt = s.now().Add(s.nonceTTL)
	if err := s.store.PutLoginNonce(ctx, addr, nonce, expiresAt.Unix()); err != nil {
		return "", time.Time{}, fmt.Errorf("store nonce: %w", err)
	}
	return LoginMessage(addr, nonce), expiresAt, nil
}

// Login checks that signature is addr's signature over its pending challenge
// and returns a JWT token. The challenge is consumed either way.
func (s *Service) Login(ctx context.Context, addr common.Address, signature []byte) (string, error) {
	nonce, expiresAt, err := s.store.TakeLoginNonce(ctx, addr)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("take nonce: %w", err)
	}
	if s.now().Unix() > expiresAt {
		return "", ErrNonceExpired
	}

	signer, err := recoverSigner(LoginMessage(addr, nonce), signature)
	if err != nil || signer != addr {
		return "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, addr)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return token, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// recoverSigner returns the address behind an EIP-191 signature of message.
// V may be 0/1 or 27/28.
func recoverSigner(message string, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes", crypto.SignatureLength)
	}
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
