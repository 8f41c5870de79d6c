// Package failure classifies errors raised by the generation pipeline.
package failure

import (
	"errors"
	"fmt"
)

type Kind string

const (
	// Generation covers noise, biome and layout composition.
	Generation Kind = "GENERATION"
	// MeshBuild covers the mesh-building collaborator.
	MeshBuild Kind = "MESH_BUILD"
	// Persistence covers region/dimension store I/O.
	Persistence Kind = "PERSISTENCE"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with a kind. An error that is already classified keeps its
// original kind. Nil stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the classification of err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
