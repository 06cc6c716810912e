package session

import (
	"strings"
	"time"
)

// UserProfile is the authenticated administrator as returned by the backend.
// It is replaced wholesale on refresh, never patched.
type UserProfile struct {
	ID        string   `json:"id"`
	Email     string   `json:"email"`
	FirstName *string  `json:"firstName,omitempty"`
	LastName  *string  `json:"lastName,omitempty"`
	AvatarURL *string  `json:"avatarUrl,omitempty"`
	Roles     []string `json:"roles"`
}

// DisplayName joins first and last name, falling back to the email
func (u *UserProfile) DisplayName() string {
	var parts []string
	if u.FirstName != nil && *u.FirstName != "" {
		parts = append(parts, *u.FirstName)
	}
	if u.LastName != nil && *u.LastName != "" {
		parts = append(parts, *u.LastName)
	}
	if len(parts) == 0 {
		return u.Email
	}
	return strings.Join(parts, " ")
}

// HasRole reports whether the user carries role (case-insensitive)
func (u *UserProfile) HasRole(role string) bool {
	for _, r := range u.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

func (u *UserProfile) clone() *UserProfile {
	if u == nil {
		return nil
	}
	c := *u
	c.Roles = append([]string(nil), u.Roles...)
	return &c
}

// Session is the console's view of the current identity and its bearer credential
type Session struct {
	AccessToken string       `json:"-"`
	User        *UserProfile `json:"user"`
	ExpiresAt   time.Time    `json:"expires_at,omitzero"`
}

// Authenticated reports whether a token is held
func (s Session) Authenticated() bool {
	return s.AccessToken != ""
}

// RefreshResponse is the payload of POST /api/auth/refresh
type RefreshResponse struct {
	AccessToken           string       `json:"accessToken"`
	AccessTokenExpiresUTC string       `json:"accessTokenExpiresUtc,omitempty"`
	User                  *UserProfile `json:"user"`
	ReturnURL             *string      `json:"returnUrl,omitempty"`
}
