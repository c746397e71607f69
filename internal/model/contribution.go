// Package model contains the struct definitions shared across packages.
package model

import "time"

// Kind identifies what a contribution carries. TEXT keeps its payload inline;
// the other kinds reference a stored blob.
type Kind string

const (
	KindText    Kind = "TEXT"
	KindDrawing Kind = "DRAWING"
	KindImage   Kind = "IMAGE"
	KindAudio   Kind = "AUDIO"
)

// Valid reports whether k is one of the accepted contribution kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindDrawing, KindImage, KindAudio:
		return true
	}
	return false
}

// HasBlob reports whether contributions of this kind store a payload blob.
func (k Kind) HasBlob() bool {
	return k == KindDrawing || k == KindImage || k == KindAudio
}

// Status is the moderation state of a contribution. Only approved records
// occupy lattice positions; the enum exists so a review workflow can be added
// without a schema change.
type Status string

const (
	StatusApproved Status = "APPROVED"
)

// Contribution is one tile on the canvas. Records are immutable after
// creation: the position is assigned exactly once and never moves.
type Contribution struct {
	ID         string    `json:"id"`
	PublicCode string    `json:"code"`
	X          int       `json:"x"`
	Y          int       `json:"y"`
	Kind       Kind      `json:"kind"`
	Content    string    `json:"content,omitempty"`
	ObjectKey  string    `json:"-"`
	Status     Status    `json:"-"`
	// SourceAddr is the submitter's network address, kept for abuse
	// mitigation and never exposed publicly.
	SourceAddr string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}
