package model

import "time"

// AskRecord is one answered (or failed) question kept in the ask history.
type AskRecord struct {
	ID           string    `json:"id" db:"id"`
	RequestID    string    `json:"request_id,omitempty" db:"request_id"`
	Service      string    `json:"service" db:"service"`
	Question     string    `json:"question" db:"question"`
	SQL          string    `json:"sql,omitempty" db:"sql_text"`
	Answer       string    `json:"answer,omitempty" db:"answer"`
	RowCount     int       `json:"row_count" db:"row_count"`
	DurationMs   int64     `json:"duration_ms" db:"duration_ms"`
	InputTokens  int       `json:"input_tokens" db:"input_tokens"`
	OutputTokens int       `json:"output_tokens" db:"output_tokens"`
	ErrorCode    string    `json:"error_code,omitempty" db:"error_code"`
	Error        string    `json:"error,omitempty" db:"error"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Failed reports whether the question ended in an error.
func (r AskRecord) Failed() bool { return r.ErrorCode != "" }
