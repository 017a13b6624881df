// Package model defines the data structures used throughout the application.
package model

import "time"

// TokenKindAccess is the only token kind issued today. The kind is stored
// both inside the signed payload and next to the token in the user's list,
// and verification requires the two to agree.
const TokenKindAccess = "access"

// Token is one entry in a user's list of live sessions.
type Token struct {
	Kind  string `json:"kind"`
	Token string `json:"token"`
}

// User represents a registered account.
//
// PasswordHash and Tokens never leave the server: both are tagged json:"-"
// so encoding a User for a response can't leak them.
//
// Tokens is the allow-list of sessions. A signed token that is not in this
// list is rejected even if its signature is valid, which is what makes
// logout real.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Tokens       []Token   `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HasToken reports whether tok is in the user's list with the given kind.
func (u *User) HasToken(kind, tok string) bool {
	for _, t := range u.Tokens {
		if t.Kind == kind && t.Token == tok {
			return true
		}
	}
	return false
}
