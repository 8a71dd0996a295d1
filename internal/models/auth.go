package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ClientMeta identifies the caller of a request for audit and session rows.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenRequest exchanges a refresh token for a new pair.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// TokenPair is issued on login and on every refresh.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// LoginResponse is a TokenPair plus the authenticated user.
type LoginResponse struct {
	TokenPair
	User UserInfo `json:"user"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

// RegisterAdminRequest bootstraps the first administrator.
type RegisterAdminRequest struct {
	Username string  `json:"username" validate:"required,min=3,max=80"`
	Password string  `json:"password" validate:"required,min=6"`
	FullName string  `json:"full_name" validate:"max=120"`
	Email    *string `json:"email" validate:"omitempty,email"`
}

type UserInfo struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	FullName string   `json:"full_name"`
	Role     UserRole `json:"role"`
}

// InfoFromUser projects the public fields of u.
func InfoFromUser(u *User) UserInfo {
	return UserInfo{ID: u.ID, Username: u.Username, FullName: u.FullName, Role: u.Role}
}

// JWTClaims is the access token payload.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Username string   `json:"username"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Info projects the claims back into a UserInfo.
func (c *JWTClaims) Info() UserInfo {
	return UserInfo{ID: c.UserID, Username: c.Username, FullName: c.FullName, Role: c.Role}
}
