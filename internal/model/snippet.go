// Package model defines the data structures shared by every layer of the application.
package model

import "time"

// Snippet is a saved code sample.
//
// Snippets are immutable once created: there is no update operation.
// ID is assigned from the persisted counter and is never reused, even after
// the snippet is deleted. The JSON tags match the keys written to the store,
// so a collection written by one process can be read by any other.
type Snippet struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Language  string    `json:"language"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"createdAt"`
}

// Settings holds user preferences persisted under the "settings" key.
type Settings struct {
	Theme           string `json:"theme" validate:"oneof=light dark"`
	DefaultLanguage string `json:"defaultLanguage" validate:"required"`
}

// Default values written on first install.
const (
	DefaultTheme    = "light"
	DefaultLanguage = "javascript"
)

// DefaultSettings returns the settings seeded on first install.
func DefaultSettings() Settings {
	return Settings{
		Theme:           DefaultTheme,
		DefaultLanguage: DefaultLanguage,
	}
}
