package domain

// SystemActorID marks changes made by the service itself rather than a user.
const SystemActorID = "system"

// Actor is the authenticated principal performing a change.
type Actor struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles,omitempty"`
}

// SystemActor returns the actor used by scheduled and automatic changes.
func SystemActor() Actor {
	return Actor{ID: SystemActorID, Roles: []string{SystemActorID}}
}
