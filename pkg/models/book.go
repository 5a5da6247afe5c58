// Package models defines the persistent and API-facing types of the story
// engine: books, narrative plans, story state, pages, and the branch cache
// entries used for speculative generation.
package models

import "time"

// Book is one narrative under authoring. It is the unit of ownership and of
// all coordination; every engine write targets a single book document.
type Book struct {
	ID            string      `json:"id" bson:"_id"`
	UserID        string      `json:"userId" bson:"userId"`
	BookOne       string      `json:"bookOne,omitempty" bson:"bookOne,omitempty"`
	BookTwo       string      `json:"bookTwo,omitempty" bson:"bookTwo,omitempty"`
	World         string      `json:"world,omitempty" bson:"world,omitempty"`
	MainCharacter string      `json:"mainCharacter,omitempty" bson:"mainCharacter,omitempty"`
	Genre         string      `json:"genre,omitempty" bson:"genre,omitempty"`
	CreatedAt     time.Time   `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt" bson:"updatedAt"`
	Plan          *Plan       `json:"plan,omitempty" bson:"plan,omitempty"`
	Story         *StoryState `json:"story,omitempty" bson:"story,omitempty"`
	PlanUpdating  bool        `json:"planUpdating" bson:"planUpdating"`
}
