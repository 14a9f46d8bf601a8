package queue

import (
	"maps"
	"time"
)

// DeviceTimeLayout is ISO-8601 in UTC with millisecond precision.
const DeviceTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// DeviceTimeProperty is the property name that carries the capture time.
const DeviceTimeProperty = "deviceTime"

// Event is one queued telemetry event. Treat it as immutable once created.
type Event struct {
	EventName  string         `json:"eventName"`
	Properties map[string]any `json:"properties"`
	DeviceTime string         `json:"deviceTime"`
}

// FormatDeviceTime renders t in DeviceTimeLayout.
func FormatDeviceTime(t time.Time) string {
	return t.UTC().Format(DeviceTimeLayout)
}

// NewEvent builds an event captured at the given time. The returned
// properties are a copy of props with DeviceTimeProperty set, so later
// changes to props do not leak into the queue.
func NewEvent(name string, props map[string]any, at time.Time) Event {
	deviceTime := FormatDeviceTime(at)
	payload := make(map[string]any, len(props)+1)
	maps.Copy(payload, props)
	payload[DeviceTimeProperty] = deviceTime
	return Event{
		EventName:  name,
		Properties: payload,
		DeviceTime: deviceTime,
	}
}
