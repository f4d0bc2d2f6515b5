package auth

import (
	"github.com/angelmondragon/gogift-backend/pkg/enums"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessTokenPayload captures the identity asserted by the issuing service.
type AccessTokenPayload struct {
	UserID       uuid.UUID
	Role         enums.ActorRole
	EnterpriseID *uuid.UUID
	Email        string
	Name         string
}

// AccessTokenClaims is the JWT shape accepted by the API.
type AccessTokenClaims struct {
	UserID       uuid.UUID       `json:"user_id"`
	Role         enums.ActorRole `json:"role"`
	EnterpriseID *uuid.UUID      `json:"enterprise_id,omitempty"`
	Email        string          `json:"email,omitempty"`
	Name         string          `json:"name,omitempty"`
	jwt.RegisteredClaims
}
