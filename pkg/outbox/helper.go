package outbox

import (
	"encoding/json"
)

// NewEvent builds a pending event with payload encoded as JSON.
func NewEvent(aggregateType, aggregateID, routingKey string, payload interface{}) (*Event, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	event := &Event{
		AggregateType: aggregateType,
		RoutingKey:    routingKey,
		Payload:       payloadJSON,
		Status:        StatusPending,
	}
	if aggregateID != "" {
		event.AggregateID = &aggregateID
	}
	return event, nil
}
