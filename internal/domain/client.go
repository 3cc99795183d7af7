package domain

import "time"

type Client struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone,omitempty"`
	Company       string    `json:"company,omitempty"`
	Active        bool      `json:"active"`
	DocumentCount int       `json:"document_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewClient carries the user-supplied fields of a client creation request.
// Identifier, timestamps and the document-count projection are assigned by
// the backend.
type NewClient struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
	Active  bool   `json:"active"`
}
