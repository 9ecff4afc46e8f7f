package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims represents the identity provider's access token payload.
type JWTClaims struct {
	UserID       string   `json:"user_id"`
	SectorID     string   `json:"sector_id"`
	DepartmentID string   `json:"department_id"`
	Role         UserRole `json:"role"`
	Email        string   `json:"email,omitempty"`
	jwt.RegisteredClaims
}
