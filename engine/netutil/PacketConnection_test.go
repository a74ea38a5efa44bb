package netutil

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPosition struct {
	X float32 `msgpack:"x"`
	Y float32 `msgpack:"y"`
	Z float32 `msgpack:"z"`
}

func newTestPacketConnPair() (*PacketConnection, *PacketConnection) {
	c1, c2 := net.Pipe()
	return NewPacketConnection(NetConn{c1}), NewPacketConnection(NetConn{c2})
}

func TestPacketConnectionSendRecv(t *testing.T) {
	sender, receiver := newTestPacketConnPair()
	defer sender.Close()
	defer receiver.Close()

	for i := 0; i < 10; i++ {
		require.NoError(t, sender.Send(uint16(i), testPosition{X: float32(i), Y: 2, Z: 3}))
	}

	for i := 0; i < 10; i++ {
		packet, err := receiver.Recv()
		require.NoError(t, err)
		assert.Equal(t, uint16(i), packet.MsgType)

		var pos testPosition
		require.NoError(t, packet.Unpack(&pos))
		assert.Equal(t, testPosition{X: float32(i), Y: 2, Z: 3}, pos)
	}
	assert.NoError(t, sender.Flush(time.Second))
}

func TestPacketHeader(t *testing.T) {
	c1, c2 := net.Pipe()
	sender := NewPacketConnection(NetConn{c1})
	defer sender.Close()
	defer c2.Close()

	payload, err := MSG_PACKER.PackMsg("abc", nil)
	require.NoError(t, err)
	require.NoError(t, sender.Send(0x0102, "abc"))

	data := make([]byte, PACKET_HEADER_SIZE+len(payload))
	_, err = io.ReadFull(c2, data)
	require.NoError(t, err)

	// the length counts the message type and the payload
	assert.Equal(t, uint32(MSGTYPE_FIELD_SIZE+len(payload)), binary.LittleEndian.Uint32(data[:SIZE_FIELD_SIZE]))
	assert.Equal(t, []byte{0x02, 0x01}, data[SIZE_FIELD_SIZE:PACKET_HEADER_SIZE])
	assert.Equal(t, payload, data[PACKET_HEADER_SIZE:])
}

func TestPacketConnectionInvalidSize(t *testing.T) {
	c1, c2 := net.Pipe()
	receiver := NewPacketConnection(NetConn{c2})
	defer c1.Close()
	defer receiver.Close()

	go func() {
		var header [SIZE_FIELD_SIZE]byte
		binary.LittleEndian.PutUint32(header[:], 0xFFFFFFFF)
		c1.Write(header[:])
	}()

	_, err := receiver.Recv()
	assert.Error(t, err)
	assert.True(t, receiver.IsClosed())
}

func TestPacketConnectionTooShort(t *testing.T) {
	c1, c2 := net.Pipe()
	receiver := NewPacketConnection(NetConn{c2})
	defer c1.Close()
	defer receiver.Close()

	go func() {
		var data [SIZE_FIELD_SIZE + 1]byte
		binary.LittleEndian.PutUint32(data[:], 1)
		c1.Write(data[:])
	}()

	_, err := receiver.Recv()
	require.Error(t, err)
	assert.Equal(t, errPacketTooShort, errors.Cause(err))
}

func TestPacketConnectionFlushTimeout(t *testing.T) {
	sender, receiver := newTestPacketConnPair()
	defer sender.Close()
	defer receiver.Close()

	// nobody reads the other end
	require.NoError(t, sender.Send(1, "x"))
	err := sender.Flush(time.Millisecond * 20)
	assert.Equal(t, errFlushTimeout, errors.Cause(err))

	// reading it lets the flush complete
	packet, err := receiver.Recv()
	require.NoError(t, err)
	assert.Equal(t, uint16(1), packet.MsgType)
	assert.NoError(t, sender.Flush(time.Second))
}

func TestPacketConnectionClosed(t *testing.T) {
	sender, receiver := newTestPacketConnPair()
	receiver.Close()
	assert.True(t, receiver.IsClosed())
	assert.NoError(t, receiver.Close())

	_, err := receiver.Recv()
	assert.Equal(t, io.EOF, err)

	sender.Close()
	err = sender.Send(1, "x")
	assert.Error(t, err)
	assert.True(t, IsConnectionError(err))
}
