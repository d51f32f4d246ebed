// Package models defines the rows stored in the recording index.
package models

import "time"

// Recording is one indexed recording entry: audio file location, the prompt
// it answers, and the demographic snapshot taken at save time.
type Recording struct {
	ID             string    `json:"id"`
	UserID         int64     `json:"user_id"`
	RecordedAt     time.Time `json:"recorded_at"`
	AgeRange       string    `json:"age_range"`
	Severity       string    `json:"severity,omitempty"`
	Origin         string    `json:"origin,omitempty"`
	FileName       string    `json:"file_name"`
	FilePath       string    `json:"file_path"`
	Prompt         string    `json:"prompt"`
	PromptCategory string    `json:"prompt_category"`
	Variant        string    `json:"variant"`
}
