// Package events publishes committed-mutation notifications to an
// AMQP exchange so external consumers (sync jobs, audit trails) can
// follow the ledger without polling.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is the envelope published for every committed mutation.
type Event struct {
	Entity    string    `json:"entity"`
	Action    string    `json:"action"`
	ID        string    `json:"id"`
	FamilyID  string    `json:"family_id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewEvent(entity, action, id, familyID string) Event {
	return Event{
		Entity:    entity,
		Action:    action,
		ID:        id,
		FamilyID:  familyID,
		Timestamp: time.Now().UTC(),
	}
}

// RoutingKey returns the direct-exchange routing key for the event.
func (e Event) RoutingKey() string {
	return fmt.Sprintf("housetab.%s.%s", e.Entity, e.Action)
}

func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ParseEvent decodes an event envelope from JSON bytes.
func ParseEvent(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	return e, nil
}
