package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type ImageAsset struct {
	ID           uuid.UUID    `json:"id"`
	Name         string       `json:"name"`
	RemoteKey    string       `json:"remote_key"`
	ThumbnailUrl string       `json:"thumbnail_url"`
	HdUrl        string       `json:"hd_url"`
	Blurhash     string       `json:"blurhash"`
	IsPublic     bool         `json:"is_public"`
	OwnerID      uuid.UUID    `json:"owner_id"`
	CreatedAt    time.Time    `json:"created_at"`
	DeletedAt    sql.NullTime `json:"deleted_at"`
}

type Job struct {
	ID           uuid.UUID       `json:"id"`
	JobType      string          `json:"job_type"`
	Payload      json.RawMessage `json:"payload"`
	Status       string          `json:"status"`
	Priority     int32           `json:"priority"`
	Attempts     int32           `json:"attempts"`
	MaxAttempts  int32           `json:"max_attempts"`
	ScheduledAt  time.Time       `json:"scheduled_at"`
	StartedAt    sql.NullTime    `json:"started_at"`
	CompletedAt  sql.NullTime    `json:"completed_at"`
	ErrorMessage sql.NullString  `json:"error_message"`
	CreatedAt    time.Time       `json:"created_at"`
}
