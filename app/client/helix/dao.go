package helix

import "time"

// Game represents a Twitch game/category
type Game struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BoxArtURL string `json:"box_art_url"`
	IGDBID    string `json:"igdb_id"`
}

// Stream represents a live Twitch stream
type Stream struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	UserLogin    string    `json:"user_login"`
	UserName     string    `json:"user_name"`
	GameID       string    `json:"game_id"`
	GameName     string    `json:"game_name"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	ViewerCount  int       `json:"viewer_count"`
	StartedAt    time.Time `json:"started_at"`
	Language     string    `json:"language"`
	ThumbnailURL string    `json:"thumbnail_url"`
	IsMature     bool      `json:"is_mature"`
}

// User represents a Twitch user
type User struct {
	ID              string    `json:"id"`
	Login           string    `json:"login"`
	DisplayName     string    `json:"display_name"`
	Type            string    `json:"type"`
	BroadcasterType string    `json:"broadcaster_type"`
	Description     string    `json:"description"`
	ProfileImageURL string    `json:"profile_image_url"`
	CreatedAt       time.Time `json:"created_at"`
}

// Pagination represents pagination information
type Pagination struct {
	Cursor string `json:"cursor,omitempty"`
}

// GamesResponse represents the response from the top games endpoint
type GamesResponse struct {
	Data       []Game      `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// StreamsResponse represents the response from the streams endpoint
type StreamsResponse struct {
	Data       []Stream    `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// UsersResponse represents the response from the users endpoint
type UsersResponse struct {
	Data []User `json:"data"`
}
