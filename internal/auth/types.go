package auth

import (
	"time"

	"golang.org/x/oauth2"
)

// UserInfo represents OIDC user claims
type UserInfo struct {
	Sub               string `json:"sub"`
	Email             string `json:"email,omitempty"`
	EmailVerified     bool   `json:"email_verified,omitempty"`
	Name              string `json:"name,omitempty"`
	PreferredUsername string `json:"preferred_username,omitempty"`
}

// merge fills empty fields from other. Sub is never overwritten.
func (u *UserInfo) merge(other UserInfo) {
	if u.Email == "" {
		u.Email = other.Email
		u.EmailVerified = other.EmailVerified
	}
	if u.Name == "" {
		u.Name = other.Name
	}
	if u.PreferredUsername == "" {
		u.PreferredUsername = other.PreferredUsername
	}
}

// DisplayName picks the friendliest non-empty name.
func (u UserInfo) DisplayName() string {
	switch {
	case u.Name != "":
		return u.Name
	case u.PreferredUsername != "":
		return u.PreferredUsername
	case u.Email != "":
		return u.Email
	}
	return u.Sub
}

// User is the signed-in user: tokens plus profile.
type User struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	Profile      UserInfo  `json:"profile"`
}

// Expired reports whether the access token has expired. A user with no
// expiry never expires.
func (u *User) Expired() bool {
	return u.expiredAt(time.Now())
}

func (u *User) expiredAt(now time.Time) bool {
	return !u.ExpiresAt.IsZero() && !now.Before(u.ExpiresAt)
}

// ExpiresIn returns the time left on the access token, zero once expired.
func (u *User) ExpiresIn() time.Duration {
	if u.ExpiresAt.IsZero() {
		return 0
	}
	if d := time.Until(u.ExpiresAt); d > 0 {
		return d
	}
	return 0
}

// applyToken copies a token response onto u. Fields missing from a refresh
// response keep their previous value.
func (u *User) applyToken(tok *oauth2.Token) {
	u.AccessToken = tok.AccessToken
	if tok.TokenType != "" {
		u.TokenType = tok.TokenType
	}
	if tok.RefreshToken != "" {
		u.RefreshToken = tok.RefreshToken
	}
	u.ExpiresAt = tok.Expiry
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		u.Scope = scope
	}
	if raw, ok := tok.Extra("id_token").(string); ok && raw != "" {
		u.IDToken = raw
	}
}

func tokenOf(u *User) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  u.AccessToken,
		TokenType:    u.TokenType,
		RefreshToken: u.RefreshToken,
		Expiry:       u.ExpiresAt,
	}
}
