// Package models defines core data structures for notes, features, relationship edges, and analysis runs.
package models

import "time"

// Note is a read-only snapshot of a note owned by the note repository.
type Note struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Tags       []string  `json:"tags"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Text returns the content used for feature extraction: title, body, and tags joined by newlines.
func (n *Note) Text() string {
	text := n.Title
	if n.Body != "" {
		if text != "" {
			text += "\n"
		}
		text += n.Body
	}
	for _, tag := range n.Tags {
		if tag == "" {
			continue
		}
		if text != "" {
			text += "\n"
		}
		text += tag
	}
	return text
}
