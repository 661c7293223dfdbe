package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail parsing or validation.
var ErrInvalidToken = errors.New("invalid token")

// Claims carries the caller address a token was issued to.
type Claims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

// Validate is called by the jwt parser after the registered claims pass.
func (c *Claims) Validate() error {
	if !common.IsHexAddress(c.Address) {
		return errors.New("address claim is not a hex address")
	}
	if c.Subject != "" && c.Subject != c.Address {
		return errors.New("subject does not match address claim")
	}
	return nil
}

// Caller returns the address the token was issued to.
func (c *Claims) Caller() common.Address {
	return common.HexToAddress(c.Address)
}

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

func (cfg *JWTConfig) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return opts
}

// GenerateToken signs an HS256 token for addr valid for cfg.TTL.
func GenerateToken(cfg *JWTConfig, addr common.Address) (string, error) {
	now := time.Now()
	claims := &Claims{
		Address: addr.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   addr.Hex(),
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses a token and checks signature, expiry, issuer,
// audience and the address claim.
func ValidateToken(cfg *JWTConfig, tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return cfg.Secret, nil
	}, cfg.parserOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}
