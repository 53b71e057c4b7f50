package domain

import (
	"time"

	"github.com/google/uuid"
)

// PassSummary reports what a single evaluation pass did.
type PassSummary struct {
	RunID        uuid.UUID     `json:"run_id"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
	WindowFrom   time.Time     `json:"window_from"`
	WindowTo     time.Time     `json:"window_to"`
	Loaded       int           `json:"loaded"`
	Invalid      int           `json:"invalid"`
	Unpriced     int           `json:"unpriced"`
	Held         int           `json:"held"`
	Triggered    int           `json:"triggered"`
	Closed       int           `json:"closed"`
	Failed       int           `json:"failed"`
	StuckClosing int           `json:"stuck_closing"`
}
