package domain

import "time"

// EventType tags an audit log record.
type EventType string

// Event types written by catalog state transitions.
const (
	EventProductUpserted    EventType = "product.upserted"
	EventProductSuperseded  EventType = "product.superseded"
	EventSourceAttached     EventType = "source.attached"
	EventSourceVerified     EventType = "source.verified"
	EventKindAttached       EventType = "kind.attached"
	EventFlagDefined        EventType = "flag.defined"
	EventFlagAsserted       EventType = "flag.asserted"
	EventEdgeAdded          EventType = "edge.added"
	EventEdgeTypeRegistered EventType = "edge_type.registered"
	EventLocationRegistered EventType = "location.registered"
	EventTaskCreated        EventType = "task.created"
	EventTaskStarted        EventType = "task.started"
	EventTaskFinished       EventType = "task.finished"
	EventTaskFailed         EventType = "task.failed"
	EventObservationReady   EventType = "observation.complete"
)

// Entity types recorded on events.
const (
	EntityProduct     = "product"
	EntitySource      = "source"
	EntityFlag        = "flag"
	EntityEdge        = "edge"
	EntityLocation    = "location"
	EntityTask        = "task"
	EntityObservation = "observation"
)

// Event is one append-only audit record.
type Event struct {
	Seq           int64
	Type          EventType
	EntityType    string
	EntityID      string
	CorrelationID string
	Payload       map[string]interface{}
	OccurredAt    time.Time
}
