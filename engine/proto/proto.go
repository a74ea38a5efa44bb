// Package proto defines the messages between the observer gate and observer clients.
//
// Every message is a netutil packet whose payload is the msgpack encoding of one of the
// message structs below.
package proto

import (
	"github.com/xiaonanln/entitysync/engine/common"
	"github.com/xiaonanln/entitysync/engine/entity"
	"github.com/xiaonanln/entitysync/engine/spatial"
)

// MsgType is the type of message types
type MsgType uint16

const (
	// MT_INVALID is the invalid message type
	MT_INVALID = iota
)

// Messages types that are sent from clients to the gate
const (
	// MT_SYNC_OBSERVER_FROM_CLIENT is sent by client to move its observer
	MT_SYNC_OBSERVER_FROM_CLIENT = 1001 + iota
	// MT_HEARTBEAT_FROM_CLIENT is sent by client to notify the gate server that the client is alive
	MT_HEARTBEAT_FROM_CLIENT
)

// Messages types that are sent from the gate to clients
const (
	// MT_SET_CLIENT_CLIENTID tells the client its ClientID after connected
	MT_SET_CLIENT_CLIENTID = 2001 + iota
	// MT_CREATE_ENTITY_ON_CLIENT message type
	MT_CREATE_ENTITY_ON_CLIENT
	// MT_DESTROY_ENTITY_ON_CLIENT message type
	MT_DESTROY_ENTITY_ON_CLIENT
	// MT_UPDATE_ENTITY_ON_CLIENT message type
	MT_UPDATE_ENTITY_ON_CLIENT
	// MT_NOTIFY_DATA_CHANGE_ON_CLIENT message type
	MT_NOTIFY_DATA_CHANGE_ON_CLIENT
)

var msgTypeNames = map[MsgType]string{
	MT_INVALID:                      "INVALID",
	MT_SYNC_OBSERVER_FROM_CLIENT:    "SYNC_OBSERVER_FROM_CLIENT",
	MT_HEARTBEAT_FROM_CLIENT:        "HEARTBEAT_FROM_CLIENT",
	MT_SET_CLIENT_CLIENTID:          "SET_CLIENT_CLIENTID",
	MT_CREATE_ENTITY_ON_CLIENT:      "CREATE_ENTITY_ON_CLIENT",
	MT_DESTROY_ENTITY_ON_CLIENT:     "DESTROY_ENTITY_ON_CLIENT",
	MT_UPDATE_ENTITY_ON_CLIENT:      "UPDATE_ENTITY_ON_CLIENT",
	MT_NOTIFY_DATA_CHANGE_ON_CLIENT: "NOTIFY_DATA_CHANGE_ON_CLIENT",
}

func (mt MsgType) String() string {
	if name, ok := msgTypeNames[mt]; ok {
		return name
	}
	return "MT_UNKNOWN"
}

// SyncObserverMsg is the payload of MT_SYNC_OBSERVER_FROM_CLIENT
type SyncObserverMsg struct {
	Position  spatial.Vector3 `msgpack:"pos"`
	Dimension int32           `msgpack:"dim"`
}

// SetClientIDMsg is the payload of MT_SET_CLIENT_CLIENTID
type SetClientIDMsg struct {
	ClientID common.ClientID `msgpack:"cid"`
}

// CreateEntityMsg is the payload of MT_CREATE_ENTITY_ON_CLIENT
type CreateEntityMsg = entity.Snapshot

// DestroyEntityMsg is the payload of MT_DESTROY_ENTITY_ON_CLIENT
type DestroyEntityMsg struct {
	Type common.EntityType `msgpack:"type"`
	ID   common.EntityID   `msgpack:"id"`
}

// UpdateEntityMsg is the payload of MT_UPDATE_ENTITY_ON_CLIENT
type UpdateEntityMsg struct {
	Type      common.EntityType `msgpack:"type"`
	ID        common.EntityID   `msgpack:"id"`
	Position  spatial.Vector3   `msgpack:"pos"`
	Dimension int32             `msgpack:"dim"`
}

// DataChangeMsg is the payload of MT_NOTIFY_DATA_CHANGE_ON_CLIENT. Deleted is set when the key was reset.
type DataChangeMsg struct {
	Type    common.EntityType `msgpack:"type"`
	ID      common.EntityID   `msgpack:"id"`
	Key     string            `msgpack:"key"`
	Value   interface{}       `msgpack:"val,omitempty"`
	Deleted bool              `msgpack:"del,omitempty"`
}
