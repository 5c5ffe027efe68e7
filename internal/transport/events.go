package transport

import (
	"encoding/json"
	"fmt"
)

// Event names on the persistent channel
const (
	// client → service
	EventFrame = "frame"

	// service → client
	EventProcessedFrame = "processed_frame"
	EventError          = "error"
)

// Event is the envelope for every channel message
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ProcessedFrameData is the payload of processed_frame
type ProcessedFrameData struct {
	Image string `json:"image"`
}

// ErrorData is the payload of error
type ErrorData struct {
	Message string `json:"message"`
}

// NewEvent wraps data in an envelope
func NewEvent(name string, data interface{}) (*Event, error) {
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s data: %w", name, err)
		}
	}
	return &Event{Event: name, Data: raw}, nil
}

// ParseEvent decodes an envelope
func ParseEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to parse event: %w", err)
	}
	if ev.Event == "" {
		return nil, fmt.Errorf("failed to parse event: missing name")
	}
	return &ev, nil
}

// ParseData unmarshals the payload into v
func (e *Event) ParseData(v interface{}) error {
	if e.Data == nil {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}
