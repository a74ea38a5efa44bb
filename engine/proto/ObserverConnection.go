package proto

import (
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/entitysync/engine/common"
	"github.com/xiaonanln/entitysync/engine/consts"
	"github.com/xiaonanln/entitysync/engine/dispatcher"
	"github.com/xiaonanln/entitysync/engine/entity"
	"github.com/xiaonanln/entitysync/engine/gwlog"
	"github.com/xiaonanln/entitysync/engine/netutil"
	"github.com/xiaonanln/entitysync/engine/spatial"
)

// ObserverConnection is the connection between the gate and an observer client
//
// On the gate side it is the dispatcher.ClientSink of the client.
type ObserverConnection struct {
	packetConn *netutil.PacketConnection
}

// NewObserverConnection creates an ObserverConnection using network connection
func NewObserverConnection(conn netutil.Connection) *ObserverConnection {
	return &ObserverConnection{
		packetConn: netutil.NewPacketConnection(conn),
	}
}

// SendSetClientID sends MT_SET_CLIENT_CLIENTID message
func (oc *ObserverConnection) SendSetClientID(id common.ClientID) error {
	return oc.packetConn.Send(MT_SET_CLIENT_CLIENTID, &SetClientIDMsg{ClientID: id})
}

// SendSyncObserver sends MT_SYNC_OBSERVER_FROM_CLIENT message
func (oc *ObserverConnection) SendSyncObserver(pos spatial.Vector3, dim int32) error {
	return oc.packetConn.Send(MT_SYNC_OBSERVER_FROM_CLIENT, &SyncObserverMsg{Position: pos, Dimension: dim})
}

// SendHeartbeat sends MT_HEARTBEAT_FROM_CLIENT message
func (oc *ObserverConnection) SendHeartbeat() error {
	return oc.packetConn.Send(MT_HEARTBEAT_FROM_CLIENT, nil)
}

// SendCreateEntityOnClient sends MT_CREATE_ENTITY_ON_CLIENT message
func (oc *ObserverConnection) SendCreateEntityOnClient(snapshot *entity.Snapshot) error {
	return oc.packetConn.Send(MT_CREATE_ENTITY_ON_CLIENT, snapshot)
}

// SendDestroyEntityOnClient sends MT_DESTROY_ENTITY_ON_CLIENT message
func (oc *ObserverConnection) SendDestroyEntityOnClient(t common.EntityType, id common.EntityID) error {
	return oc.packetConn.Send(MT_DESTROY_ENTITY_ON_CLIENT, &DestroyEntityMsg{Type: t, ID: id})
}

// SendUpdateEntityOnClient sends MT_UPDATE_ENTITY_ON_CLIENT message
func (oc *ObserverConnection) SendUpdateEntityOnClient(t common.EntityType, id common.EntityID, pos spatial.Vector3, dim int32) error {
	return oc.packetConn.Send(MT_UPDATE_ENTITY_ON_CLIENT, &UpdateEntityMsg{Type: t, ID: id, Position: pos, Dimension: dim})
}

// SendNotifyDataChangeOnClient sends MT_NOTIFY_DATA_CHANGE_ON_CLIENT message
func (oc *ObserverConnection) SendNotifyDataChangeOnClient(t common.EntityType, id common.EntityID, key string, val interface{}, deleted bool) error {
	return oc.packetConn.Send(MT_NOTIFY_DATA_CHANGE_ON_CLIENT, &DataChangeMsg{Type: t, ID: id, Key: key, Value: val, Deleted: deleted})
}

// SendEvents sends one packet per event. An event which can not be packed is logged and skipped,
// the rest of the batch is still sent. Returns the first error closing the connection.
func (oc *ObserverConnection) SendEvents(events []dispatcher.Event) error {
	for i := range events {
		err := oc.sendEvent(&events[i])
		if err == nil {
			continue
		}
		if netutil.IsConnectionError(err) {
			return err
		}
		gwlog.Errorf("%s: drop %s: %v", oc, events[i], err)
	}
	return nil
}

func (oc *ObserverConnection) sendEvent(ev *dispatcher.Event) error {
	switch ev.Kind {
	case dispatcher.EventCreate:
		if ev.Snapshot == nil {
			return errors.Errorf("%s: create event without snapshot: %s", oc, ev)
		}
		return oc.SendCreateEntityOnClient(ev.Snapshot)
	case dispatcher.EventRemove:
		return oc.SendDestroyEntityOnClient(ev.Type, ev.ID)
	case dispatcher.EventUpdate:
		return oc.SendUpdateEntityOnClient(ev.Type, ev.ID, ev.Position, ev.Dimension)
	case dispatcher.EventDataChange:
		return oc.SendNotifyDataChangeOnClient(ev.Type, ev.ID, ev.Key, ev.Value, ev.Deleted)
	default:
		return errors.Errorf("%s: unknown event kind %s", oc, ev.Kind)
	}
}

// Flush waits until the packets sent so far are written to the network, or timeout
func (oc *ObserverConnection) Flush(timeout time.Duration) error {
	return oc.packetConn.Flush(timeout)
}

// Recv receives the next packet and retrive the message type
func (oc *ObserverConnection) Recv(msgtype *MsgType) (*netutil.Packet, error) {
	pkt, err := oc.packetConn.Recv()
	if err != nil {
		return nil, err
	}

	*msgtype = MsgType(pkt.MsgType)
	if consts.DEBUG_PACKETS {
		gwlog.Debugf("%s: Recv msgtype=%v, payload size=%d", oc, *msgtype, len(pkt.Payload))
	}
	return pkt, nil
}

// Close this connection
func (oc *ObserverConnection) Close() error {
	return oc.packetConn.Close()
}

// IsClosed returns if the connection is closed
func (oc *ObserverConnection) IsClosed() bool {
	return oc.packetConn.IsClosed()
}

// RemoteAddr returns the remote address
func (oc *ObserverConnection) RemoteAddr() net.Addr {
	return oc.packetConn.RemoteAddr()
}

// LocalAddr returns the local address
func (oc *ObserverConnection) LocalAddr() net.Addr {
	return oc.packetConn.LocalAddr()
}

func (oc *ObserverConnection) String() string {
	return fmt.Sprintf("ObserverConnection<%s>", oc.RemoteAddr())
}

// UnpackEvent converts a packet sent by the gate back to the event it carries
func UnpackEvent(msgtype MsgType, packet *netutil.Packet) (dispatcher.Event, error) {
	var ev dispatcher.Event
	switch msgtype {
	case MT_CREATE_ENTITY_ON_CLIENT:
		var msg CreateEntityMsg
		if err := packet.Unpack(&msg); err != nil {
			return ev, err
		}
		ev = dispatcher.Event{Kind: dispatcher.EventCreate, Type: msg.Type, ID: msg.ID, Snapshot: &msg, Position: msg.Position, Dimension: msg.Dimension}
	case MT_DESTROY_ENTITY_ON_CLIENT:
		var msg DestroyEntityMsg
		if err := packet.Unpack(&msg); err != nil {
			return ev, err
		}
		ev = dispatcher.Event{Kind: dispatcher.EventRemove, Type: msg.Type, ID: msg.ID}
	case MT_UPDATE_ENTITY_ON_CLIENT:
		var msg UpdateEntityMsg
		if err := packet.Unpack(&msg); err != nil {
			return ev, err
		}
		ev = dispatcher.Event{Kind: dispatcher.EventUpdate, Type: msg.Type, ID: msg.ID, Position: msg.Position, Dimension: msg.Dimension}
	case MT_NOTIFY_DATA_CHANGE_ON_CLIENT:
		var msg DataChangeMsg
		if err := packet.Unpack(&msg); err != nil {
			return ev, err
		}
		ev = dispatcher.Event{Kind: dispatcher.EventDataChange, Type: msg.Type, ID: msg.ID, Key: msg.Key, Value: msg.Value, Deleted: msg.Deleted}
	default:
		return ev, errors.Errorf("msgtype %s does not carry an event", msgtype)
	}
	return ev, nil
}
