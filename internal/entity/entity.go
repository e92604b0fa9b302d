package entity

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pixil98/go-errors"
)

// Id is the stable identity of a shared simulation object. Two ids are equal
// iff they designate the same entity, and an id is never reused once retired.
type Id string

// NewId returns a fresh random identifier.
func NewId() Id {
	return Id(uuid.NewString())
}

func (id Id) String() string {
	return string(id)
}

func (id Id) IsZero() bool {
	return id == ""
}

// Kind classifies an entity. Only seats take part in deconstruction checks
// today, the rest are carried for the directory's benefit.
type Kind string

const (
	KindBase      Kind = "base"
	KindSeat      Kind = "seat"
	KindBed       Kind = "bed"
	KindContainer Kind = "container"
	KindFurniture Kind = "furniture"
	KindPlayer    Kind = "player"
)

func (k Kind) valid() bool {
	switch k {
	case KindBase, KindSeat, KindBed, KindContainer, KindFurniture, KindPlayer:
		return true
	}
	return false
}

// Entity is the directory's view of a shared object.
type Entity struct {
	Kind   Kind   `json:"kind"`
	Name   string `json:"name,omitempty"`
	Parent Id     `json:"parent,omitempty"`
}

// Validate satisfies storage.ValidatingSpec.
func (e *Entity) Validate() error {
	if e == nil {
		return fmt.Errorf("spec is required")
	}

	el := errors.NewErrorList()

	if e.Kind == "" {
		el.Add(fmt.Errorf("kind is required"))
	} else if !e.Kind.valid() {
		el.Add(fmt.Errorf("unknown kind %q", e.Kind))
	}

	return el.Err()
}
