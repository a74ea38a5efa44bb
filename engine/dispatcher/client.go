package dispatcher

import (
	"fmt"
	"sync"

	"github.com/ErikKalkoken/go-set"
	"github.com/xiaonanln/entitysync/engine/common"
	"github.com/xiaonanln/entitysync/engine/spatial"
)

// Client is an observer of the entities around its position
type Client struct {
	ID   common.ClientID
	sink ClientSink

	mu        sync.RWMutex
	position  spatial.Vector3
	dimension int32

	// visible entities per type, only accessed by the tick of the type
	visible [common.EntityTypeCount]set.Set[common.EntityID]
}

func newClient(id common.ClientID, pos spatial.Vector3, dim int32, sink ClientSink) *Client {
	return &Client{
		ID:        id,
		sink:      sink,
		position:  pos,
		dimension: dim,
	}
}

func (c *Client) String() string {
	return fmt.Sprintf("Client<%s>", c.ID)
}

// Position returns the position and dimension of the client
func (c *Client) Position() (spatial.Vector3, int32) {
	c.mu.RLock()
	pos, dim := c.position, c.dimension
	c.mu.RUnlock()
	return pos, dim
}

func (c *Client) setPosition(pos spatial.Vector3, dim int32) {
	c.mu.Lock()
	c.position = pos
	c.dimension = dim
	c.mu.Unlock()
}

// Sink returns the event sink of the client
func (c *Client) Sink() ClientSink {
	return c.sink
}
