package models

import (
	"database/sql"
	"time"
)

// TableRecord is one billiards table from creation to its final result
type TableRecord struct {
	ID           string        `db:"id" json:"id"`
	Seats        int           `db:"seats" json:"seats"`
	GroupPolicy  string        `db:"group_policy" json:"group_policy"`
	ComputerSide int           `db:"computer_side" json:"computer_side"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	CompletedAt  sql.NullTime  `db:"completed_at" json:"completed_at,omitempty"`
	Winner       sql.NullInt64 `db:"winner" json:"winner,omitempty"`
}

// TableShot is a resolved shot on a table
type TableShot struct {
	ID           int64     `db:"id" json:"id"`
	TableID      string    `db:"table_id" json:"table_id"`
	ShotNumber   int       `db:"shot_number" json:"shot_number"`
	Side         int       `db:"side" json:"side"`
	Seat         int       `db:"seat" json:"seat"`
	Angle        float64   `db:"angle" json:"angle"`
	Power        float64   `db:"power" json:"power"`
	Pocketed     string    `db:"pocketed" json:"pocketed"` // JSON array of ball ids
	Foul         bool      `db:"foul" json:"foul"`
	TurnSwitched bool      `db:"turn_switched" json:"turn_switched"`
	GameOver     bool      `db:"game_over" json:"game_over"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
