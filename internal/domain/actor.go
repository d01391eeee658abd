package domain

// ActorType differentiates who drove an engine operation.
type ActorType string

const (
	ActorTypeSystem    ActorType = "SYSTEM"
	ActorTypeHandler   ActorType = "HANDLER"
	ActorTypeRequester ActorType = "REQUESTER"
)

// Actor identifies the principal behind a state change, as recorded in
// the audit trail and on events. ID is empty for the system actor.
type Actor struct {
	Type ActorType `json:"type"`
	ID   string    `json:"id,omitempty"`
}

// SystemActor is recorded for engine-initiated changes such as
// automatic assignment and timer fires.
func SystemActor() Actor {
	return Actor{Type: ActorTypeSystem}
}

// HandlerActor identifies a staff handler acting on a ticket.
func HandlerActor(id string) Actor {
	return Actor{Type: ActorTypeHandler, ID: id}
}

// RequesterActor identifies the ticket's requester.
func RequesterActor(id string) Actor {
	return Actor{Type: ActorTypeRequester, ID: id}
}
