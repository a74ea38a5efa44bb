package netutil

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/xiaonanln/entitysync/engine/consts"
	"github.com/xiaonanln/pktconn"
)

const (
	// SIZE_FIELD_SIZE is the size of the length prefix written by pktconn
	SIZE_FIELD_SIZE = 4
	// MSGTYPE_FIELD_SIZE is the size of the message type at the start of the payload
	MSGTYPE_FIELD_SIZE = 2
	// PACKET_HEADER_SIZE is the total header size
	PACKET_HEADER_SIZE = SIZE_FIELD_SIZE + MSGTYPE_FIELD_SIZE
)

var (
	errPayloadTooLarge = errors.New("packet payload too large")
	errPacketTooShort  = errors.New("packet too short")
)

// Packet is a received message: its type and the packed payload
type Packet struct {
	MsgType uint16
	Payload []byte
}

// Unpack unpacks the payload into msg using MSG_PACKER
func (p *Packet) Unpack(msg interface{}) error {
	return errors.Wrapf(MSG_PACKER.UnpackMsg(p.Payload, msg), "unpack msgtype %d", p.MsgType)
}

func (p *Packet) String() string {
	return fmt.Sprintf("Packet<%d|%dB>", p.MsgType, len(p.Payload))
}

// newSendPacket packs msg after the message type into a new pktconn packet
func newSendPacket(msgtype uint16, msg interface{}) (*pktconn.Packet, error) {
	payload, err := MSG_PACKER.PackMsg(msg, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "pack msgtype %d", msgtype)
	}
	if len(payload) > consts.MAX_PACKET_PAYLOAD_LENGTH {
		return nil, errors.Wrapf(errPayloadTooLarge, "msgtype %d: %d bytes", msgtype, len(payload))
	}

	packet := pktconn.NewPacket()
	packet.WriteUint16(msgtype)
	packet.WriteBytes(payload)
	return packet, nil
}

// readPacket copies the message type and payload out of a received pktconn packet
func readPacket(pkt *pktconn.Packet) (*Packet, error) {
	plen := pkt.GetPayloadLen()
	if plen < MSGTYPE_FIELD_SIZE {
		return nil, errors.Wrapf(errPacketTooShort, "%d bytes", plen)
	}
	if plen-MSGTYPE_FIELD_SIZE > consts.MAX_PACKET_PAYLOAD_LENGTH {
		return nil, errors.Wrapf(errPayloadTooLarge, "%d bytes", plen)
	}

	packet := &Packet{MsgType: pkt.ReadUint16()}
	packet.Payload = append([]byte(nil), pkt.UnreadPayload()...)
	return packet, nil
}
