package service

import (
	"errors"
	"fmt"
	"time"

	"delivery-wallet-engine/internal/core/domain"
	"delivery-wallet-engine/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// actorClaims is the token body the auth service issues for marketplace actors.
type actorClaims struct {
	OwnerType string `json:"owner_type"`
	ActorID   string `json:"actor_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTTokenService implements ports.TokenService using HS256 JWT.
type JWTTokenService struct {
	secret []byte
	issuer string
}

// NewJWTTokenService creates a new JWT token service.
func NewJWTTokenService(secret string, issuer string) *JWTTokenService {
	return &JWTTokenService{
		secret: []byte(secret),
		issuer: issuer,
	}
}

// Generate signs a token for actor. Production tokens come from the auth service;
// this exists for tooling and tests that must speak the same format.
func (s *JWTTokenService) Generate(actor domain.ActorRef, ttl time.Duration) (string, time.Time, error) {
	if actor.IsZero() {
		return "", time.Time{}, errors.New("actor is required")
	}
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims := actorClaims{
		OwnerType: string(actor.OwnerType()),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.String(),
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if actor.OwnerType() != domain.OwnerTypeSystem {
		claims.ActorID = actor.OwnerID().String()
	}
	if userID, ok := actor.ActingUser(); ok {
		claims.UserID = userID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// Validate parses and validates a JWT token, returning the actor it was issued for.
func (s *JWTTokenService) Validate(tokenString string) (*ports.TokenClaims, error) {
	claims := &actorClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	actor, err := domain.ParseActor(claims.OwnerType, claims.ActorID)
	if err != nil {
		return nil, fmt.Errorf("invalid actor in token: %w", err)
	}
	if claims.UserID != "" {
		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			return nil, fmt.Errorf("invalid user id in token: %w", err)
		}
		actor = actor.WithUser(userID)
	}

	return &ports.TokenClaims{
		Actor:     actor,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
