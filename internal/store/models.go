package store

import (
	"database/sql"
	"time"
)

type Event struct {
	ID        int64         `json:"id"`
	Level     string        `json:"level"`
	Category  string        `json:"category"`
	Message   string        `json:"message"`
	UserID    sql.NullInt64 `json:"user_id"`
	IpAddress string        `json:"ip_address"`
	Metadata  string        `json:"metadata"`
	CreatedAt time.Time     `json:"created_at"`
}

type Registration struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	ClaimedAt time.Time `json:"claimed_at"`
}

type User struct {
	ID            int64          `json:"id"`
	Email         string         `json:"email"`
	PasswordHash  string         `json:"-"`
	FirstName     string         `json:"first_name"`
	LastName      string         `json:"last_name"`
	Role          string         `json:"role"`
	PhoneNumber   sql.NullString `json:"phone_number"`
	About         sql.NullString `json:"about"`
	GithubUrl     sql.NullString `json:"github_url"`
	LinkedinUrl   sql.NullString `json:"linkedin_url"`
	FacebookUrl   sql.NullString `json:"facebook_url"`
	InstagramUrl  sql.NullString `json:"instagram_url"`
	HackerrankUrl sql.NullString `json:"hackerrank_url"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	LastLoginAt   sql.NullTime   `json:"last_login_at"`
}
