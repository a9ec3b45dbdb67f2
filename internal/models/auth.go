package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Login     string `json:"login" validate:"required"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        UserInfo  `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID          string   `json:"id"`
	Login       string   `json:"login"`
	FullName    string   `json:"full_name"`
	Permissions []string `json:"permissions"`
}

// JWTClaims represents the JWT payload for access tokens. Permission codes
// ride inside the token so the workflow engine can gate actions without an
// extra lookup per request.
type JWTClaims struct {
	UserID      string   `json:"user_id"`
	Login       string   `json:"login"`
	FullName    string   `json:"full_name"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// PermissionSet returns the claims' permissions as a lookup set.
func (c *JWTClaims) PermissionSet() PermissionSet {
	if c == nil {
		return PermissionSet{}
	}
	return NewPermissionSet(c.Permissions)
}
