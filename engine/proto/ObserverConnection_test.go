package proto

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaonanln/entitysync/engine/common"
	"github.com/xiaonanln/entitysync/engine/dispatcher"
	"github.com/xiaonanln/entitysync/engine/entity"
	"github.com/xiaonanln/entitysync/engine/netutil"
	"github.com/xiaonanln/entitysync/engine/spatial"
)

func newTestConnPair() (*ObserverConnection, *ObserverConnection) {
	c1, c2 := net.Pipe()
	return NewObserverConnection(netutil.NetConn{Conn: c1}), NewObserverConnection(netutil.NetConn{Conn: c2})
}

func recvEvent(t *testing.T, oc *ObserverConnection) dispatcher.Event {
	var msgtype MsgType
	packet, err := oc.Recv(&msgtype)
	require.NoError(t, err)
	ev, err := UnpackEvent(msgtype, packet)
	require.NoError(t, err)
	return ev
}

func TestSendEvents(t *testing.T) {
	gate, client := newTestConnPair()
	defer gate.Close()
	defer client.Close()

	snapshot := &entity.Snapshot{
		Type:      common.Character,
		ID:        3,
		Position:  spatial.Vector3{X: 1, Y: 2, Z: 3},
		Dimension: 5,
		Range:     100,
		Data:      map[string]interface{}{"model": "m1"},
	}
	events := []dispatcher.Event{
		{Kind: dispatcher.EventRemove, Type: common.Character, ID: 1},
		{Kind: dispatcher.EventCreate, Type: common.Character, ID: 3, Snapshot: snapshot, Position: snapshot.Position, Dimension: 5},
		{Kind: dispatcher.EventUpdate, Type: common.Character, ID: 4, Position: spatial.Vector3{X: 9}, Dimension: 1},
		{Kind: dispatcher.EventDataChange, Type: common.Character, ID: 4, Key: "name", Value: "abc"},
		{Kind: dispatcher.EventDataChange, Type: common.Character, ID: 4, Key: "hp", Deleted: true},
	}

	errc := make(chan error, 1)
	go func() {
		errc <- gate.SendEvents(events)
	}()

	ev := recvEvent(t, client)
	assert.Equal(t, events[0], ev)

	ev = recvEvent(t, client)
	assert.Equal(t, dispatcher.EventCreate, ev.Kind)
	assert.Equal(t, common.EntityID(3), ev.ID)
	require.NotNil(t, ev.Snapshot)
	assert.Equal(t, snapshot.Position, ev.Snapshot.Position)
	assert.Equal(t, uint32(100), ev.Snapshot.Range)
	assert.Equal(t, "m1", ev.Snapshot.Data["model"])

	assert.Equal(t, events[2], recvEvent(t, client))
	assert.Equal(t, events[3], recvEvent(t, client))
	assert.Equal(t, events[4], recvEvent(t, client))
	assert.NoError(t, <-errc)
}

func TestSyncObserver(t *testing.T) {
	gate, client := newTestConnPair()
	defer gate.Close()
	defer client.Close()

	go func() {
		client.SendSyncObserver(spatial.Vector3{X: 10, Y: 20}, 7)
		client.SendHeartbeat()
	}()

	var msgtype MsgType
	packet, err := gate.Recv(&msgtype)
	require.NoError(t, err)
	assert.Equal(t, MsgType(MT_SYNC_OBSERVER_FROM_CLIENT), msgtype)
	var msg SyncObserverMsg
	require.NoError(t, packet.Unpack(&msg))
	assert.Equal(t, spatial.Vector3{X: 10, Y: 20}, msg.Position)
	assert.Equal(t, int32(7), msg.Dimension)

	_, err = gate.Recv(&msgtype)
	require.NoError(t, err)
	assert.Equal(t, MsgType(MT_HEARTBEAT_FROM_CLIENT), msgtype)

	_, err = UnpackEvent(msgtype, packet)
	assert.Error(t, err)
}

func TestSendEventsSkipsUnpackableEvent(t *testing.T) {
	gate, client := newTestConnPair()
	defer gate.Close()
	defer client.Close()

	bad := &entity.Snapshot{Type: common.Object, ID: 1, Data: map[string]interface{}{"ch": make(chan int)}}
	good := &entity.Snapshot{Type: common.Object, ID: 2, Data: map[string]interface{}{"k": "v"}}
	events := []dispatcher.Event{
		{Kind: dispatcher.EventCreate, Type: common.Object, ID: 1, Snapshot: bad},
		{Kind: dispatcher.EventCreate, Type: common.Object, ID: 2, Snapshot: good},
		{Kind: dispatcher.EventRemove, Type: common.Object, ID: 7},
	}
	require.NoError(t, gate.SendEvents(events))

	ev := recvEvent(t, client)
	assert.Equal(t, dispatcher.EventCreate, ev.Kind)
	assert.Equal(t, common.EntityID(2), ev.ID)
	assert.Equal(t, dispatcher.Event{Kind: dispatcher.EventRemove, Type: common.Object, ID: 7}, recvEvent(t, client))
}

func TestSendEventsClosed(t *testing.T) {
	gate, client := newTestConnPair()
	defer client.Close()
	gate.Close()

	err := gate.SendEvents([]dispatcher.Event{{Kind: dispatcher.EventRemove, Type: common.Object, ID: 1}})
	assert.True(t, netutil.IsConnectionError(err))
}

func TestCreateWithoutSnapshot(t *testing.T) {
	gate, client := newTestConnPair()
	defer gate.Close()
	defer client.Close()

	err := gate.sendEvent(&dispatcher.Event{Kind: dispatcher.EventCreate, Type: common.Object, ID: 1})
	assert.Error(t, err)
	// skipped by SendEvents
	assert.NoError(t, gate.SendEvents([]dispatcher.Event{{Kind: dispatcher.EventCreate, Type: common.Object, ID: 1}}))
}

func TestMsgTypeString(t *testing.T) {
	assert.Equal(t, "CREATE_ENTITY_ON_CLIENT", MsgType(MT_CREATE_ENTITY_ON_CLIENT).String())
	assert.Equal(t, "MT_UNKNOWN", MsgType(9).String())
}
