package dispatcher

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/xiaonanln/entitysync/engine/common"
	"github.com/xiaonanln/entitysync/engine/entity"
	"github.com/xiaonanln/entitysync/engine/spatial"
)

// EventKind is the kind of a client event
type EventKind uint8

const (
	// EventCreate makes an entity visible on the client, with a full snapshot
	EventCreate EventKind = iota
	// EventRemove makes an entity invisible on the client
	EventRemove
	// EventUpdate carries the new position and dimension of a visible entity
	EventUpdate
	// EventDataChange carries a changed metadata key of a visible entity
	EventDataChange
)

var eventKindNames = [...]string{"Create", "Remove", "Update", "DataChange"}

func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return fmt.Sprintf("EventKind<%d>", uint8(k))
}

// Event is one entry of the per-client event stream
type Event struct {
	Kind      EventKind         `msgpack:"kind"`
	Type      common.EntityType `msgpack:"type"`
	ID        common.EntityID   `msgpack:"id"`
	Snapshot  *entity.Snapshot  `msgpack:"snap,omitempty"`
	Position  spatial.Vector3   `msgpack:"pos"`
	Dimension int32             `msgpack:"dim"`
	Key       string            `msgpack:"key,omitempty"`
	Value     interface{}       `msgpack:"val,omitempty"`
	Deleted   bool              `msgpack:"del,omitempty"`
}

func (ev Event) String() string {
	key := common.EntityKey{Type: ev.Type, ID: ev.ID}
	switch ev.Kind {
	case EventUpdate:
		return fmt.Sprintf("Update(%s, %s, dim=%d)", key, ev.Position, ev.Dimension)
	case EventDataChange:
		if ev.Deleted {
			return fmt.Sprintf("DataChange(%s, %s deleted)", key, ev.Key)
		}
		return fmt.Sprintf("DataChange(%s, %s=%v)", key, ev.Key, ev.Value)
	default:
		return fmt.Sprintf("%s(%s)", ev.Kind, key)
	}
}

// ClientSink receives the events of one client. SendEvents is called by the dispatch worker of
// an entity type, so sinks shared by several types must be safe for concurrent use.
type ClientSink interface {
	SendEvents(events []Event) error
}

// ErrSinkFull is returned by ChanSink when its buffer is full
var ErrSinkFull = errors.New("client sink is full")

// ChanSink is a ClientSink delivering event batches to a buffered channel
type ChanSink struct {
	C chan []Event
}

// NewChanSink creates a ChanSink with a buffer of size batches
func NewChanSink(size int) *ChanSink {
	return &ChanSink{C: make(chan []Event, size)}
}

// SendEvents puts the batch into the channel without blocking
func (s *ChanSink) SendEvents(events []Event) error {
	select {
	case s.C <- events:
		return nil
	default:
		return ErrSinkFull
	}
}

// Drain returns all buffered events in order
func (s *ChanSink) Drain() []Event {
	var events []Event
	for {
		select {
		case batch := <-s.C:
			events = append(events, batch...)
		default:
			return events
		}
	}
}
