package common

import "strings"

// EventType is the kind of row change carried by the change feed.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// String returns the string representation
func (et EventType) String() string {
	return string(et)
}

// IsValid checks if the event type is one of INSERT, UPDATE or DELETE
func (et EventType) IsValid() bool {
	return et == EventInsert || et == EventUpdate || et == EventDelete
}

// Mask returns the filter bit for the event type, zero if invalid.
func (et EventType) Mask() EventMask {
	switch et {
	case EventInsert:
		return MaskInsert
	case EventUpdate:
		return MaskUpdate
	case EventDelete:
		return MaskDelete
	}
	return 0
}

func ParseEventType(s string) EventType {
	return EventType(strings.ToUpper(strings.TrimSpace(s)))
}

// EventMask selects which event types a subscriber wants.
type EventMask uint8

const (
	MaskInsert EventMask = 1 << iota
	MaskUpdate
	MaskDelete

	MaskAll = MaskInsert | MaskUpdate | MaskDelete
)

func (m EventMask) Has(et EventType) bool {
	bit := et.Mask()
	return bit != 0 && m&bit != 0
}

// ParseEventMask reads a comma separated list like "INSERT,DELETE" or "*".
// An empty list means every event.
func ParseEventMask(list string) EventMask {
	list = strings.TrimSpace(list)
	if list == "" || list == "*" {
		return MaskAll
	}

	var mask EventMask
	for _, part := range strings.Split(list, ",") {
		if part == "*" {
			return MaskAll
		}
		mask |= ParseEventType(part).Mask()
	}
	return mask
}
