// Package gate implements the shared-secret check performed before a client
// connection is admitted to a room.
package gate

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingToken = errors.New("missing access token")
	ErrInvalidToken = errors.New("invalid access token")
	ErrRoomMismatch = errors.New("token not valid for room")
)

type Mode string

const (
	ModeOpen   Mode = "open"
	ModeSecret Mode = "secret"
	ModeBcrypt Mode = "bcrypt"
	ModeJWT    Mode = "jwt"
)

// AnyRoom in a token's room claim admits it to every room.
const AnyRoom = "*"

type Config struct {
	Mode   Mode
	Secret string
	// SecretHash is a bcrypt hash, used by ModeBcrypt.
	SecretHash string
	// Issuer is checked in ModeJWT when set.
	Issuer    string
	ClockSkew time.Duration
}

type Gate struct {
	cfg Config
	now func() time.Time
}

// New builds a gate. An empty mode is derived from the configured secrets:
// a hash selects bcrypt, a plain secret selects exact match, nothing leaves
// the gate open.
func New(cfg Config) (*Gate, error) {
	if cfg.Mode == "" {
		switch {
		case cfg.SecretHash != "":
			cfg.Mode = ModeBcrypt
		case cfg.Secret != "":
			cfg.Mode = ModeSecret
		default:
			cfg.Mode = ModeOpen
		}
	}

	switch cfg.Mode {
	case ModeOpen:
	case ModeSecret, ModeJWT:
		if cfg.Secret == "" {
			return nil, fmt.Errorf("gate mode %q requires a secret", cfg.Mode)
		}
	case ModeBcrypt:
		if cfg.SecretHash == "" {
			return nil, fmt.Errorf("gate mode %q requires a secret hash", cfg.Mode)
		}
		if _, err := bcrypt.Cost([]byte(cfg.SecretHash)); err != nil {
			return nil, fmt.Errorf("gate secret hash: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown gate mode %q", cfg.Mode)
	}

	return &Gate{cfg: cfg, now: time.Now}, nil
}

func (g *Gate) Mode() Mode { return g.cfg.Mode }

// Open reports whether every connection is admitted.
func (g *Gate) Open() bool { return g.cfg.Mode == ModeOpen }

// Check admits or rejects token for room. It never touches room state.
func (g *Gate) Check(room, token string) error {
	if g.cfg.Mode == ModeOpen {
		return nil
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrMissingToken
	}

	switch g.cfg.Mode {
	case ModeSecret:
		if subtle.ConstantTimeCompare([]byte(token), []byte(g.cfg.Secret)) != 1 {
			return ErrInvalidToken
		}
		return nil
	case ModeBcrypt:
		if err := bcrypt.CompareHashAndPassword([]byte(g.cfg.SecretHash), []byte(token)); err != nil {
			return ErrInvalidToken
		}
		return nil
	case ModeJWT:
		return g.checkJWT(room, token)
	}
	return ErrInvalidToken
}

// RoomClaims is the payload of a room access JWT.
type RoomClaims struct {
	jwt.StandardClaims
	Room string `json:"room"`
}

func (g *Gate) checkJWT(room, tokenStr string) error {
	claims := &RoomClaims{}
	parser := &jwt.Parser{SkipClaimsValidation: true}
	token, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrInvalidToken
		}
		return []byte(g.cfg.Secret), nil
	})
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}

	now := g.now()
	skew := g.cfg.ClockSkew
	if claims.ExpiresAt != 0 && now.After(time.Unix(claims.ExpiresAt, 0).Add(skew)) {
		return ErrInvalidToken
	}
	if claims.NotBefore != 0 && now.Before(time.Unix(claims.NotBefore, 0).Add(-skew)) {
		return ErrInvalidToken
	}
	if g.cfg.Issuer != "" && !claims.VerifyIssuer(g.cfg.Issuer, true) {
		return ErrInvalidToken
	}
	if claims.Room != AnyRoom && !strings.EqualFold(claims.Room, room) {
		return ErrRoomMismatch
	}
	return nil
}

// IssueToken signs a room token with the gate secret. Used by operators and
// tests; it fails unless the gate runs in jwt mode.
func (g *Gate) IssueToken(room string, ttl time.Duration) (string, error) {
	if g.cfg.Mode != ModeJWT {
		return "", fmt.Errorf("gate mode %q cannot issue tokens", g.cfg.Mode)
	}
	now := g.now()
	claims := RoomClaims{
		StandardClaims: jwt.StandardClaims{
			Issuer:   g.cfg.Issuer,
			IssuedAt: now.Unix(),
		},
		Room: room,
	}
	if ttl > 0 {
		claims.ExpiresAt = now.Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(g.cfg.Secret))
}
