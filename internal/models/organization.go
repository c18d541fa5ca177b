package models

import (
	"time"
)

// Organization is one isolated tenant. All PM data except global templates is
// partitioned by organization id.
type Organization struct {
	ID        string    `bson:"_id,omitempty" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Active    bool      `bson:"active" json:"active"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
