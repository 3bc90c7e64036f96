package domain

import "time"

// User represents a registered player. OpenID is the opaque identity token
// handed to us by the platform; it is unique and never changes.
type User struct {
	ID        int64     `json:"id"`
	OpenID    string    `json:"open_id"`
	Nickname  string    `json:"nickname"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LoginRequest represents a login/registration request. Nickname and
// AvatarURL are optional; empty values never overwrite stored ones.
type LoginRequest struct {
	OpenID    string `json:"open_id"`
	Nickname  string `json:"nickname,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Validate checks the request for required fields
func (r *LoginRequest) Validate() error {
	if r.OpenID == "" {
		return ErrInvalidRequest
	}
	return nil
}
