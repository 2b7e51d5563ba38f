package model

import "time"

// Profile is a user's public profile row.
type Profile struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	AvatarURL string    `json:"avatar_url"`
	Website   string    `json:"website"`
	CreatedAt time.Time `json:"created_at"`
}

// ProfilePatch carries a partial profile update (nil = no change).
type ProfilePatch struct {
	FullName  *string `json:"full_name,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
	Website   *string `json:"website,omitempty"`
}
