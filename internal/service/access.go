package service

import (
	"github.com/emrgen/docrender/internal/model"
	"github.com/google/uuid"
)

// Actor is the caller of a service operation. The zero value is an anonymous actor.
type Actor struct {
	id            uuid.UUID
	authenticated bool
}

// Anonymous returns an actor with no identity.
func Anonymous() Actor {
	return Actor{}
}

// UserActor returns an authenticated actor.
func UserActor(id uuid.UUID) Actor {
	return Actor{id: id, authenticated: true}
}

func (a Actor) ID() uuid.UUID {
	return a.id
}

func (a Actor) Authenticated() bool {
	return a.authenticated
}

func (a Actor) String() string {
	if !a.authenticated {
		return "anonymous"
	}

	return a.id.String()
}

// AccessGuard decides who may see and change a document.
type AccessGuard struct{}

// IsOwner reports whether the actor created the document.
func (AccessGuard) IsOwner(actor Actor, doc *model.Document) bool {
	return actor.authenticated && doc != nil && doc.Owner == actor.id.String()
}

// CanView reports whether the actor may read the document: its owner always may,
// anyone may when the document is public.
func (g AccessGuard) CanView(actor Actor, doc *model.Document) bool {
	if doc == nil {
		return false
	}

	return doc.Public || g.IsOwner(actor, doc)
}

// CanEdit reports whether the actor may change or delete the document.
func (g AccessGuard) CanEdit(actor Actor, doc *model.Document) bool {
	return g.IsOwner(actor, doc)
}
