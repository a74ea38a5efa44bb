package netutil

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/entitysync/engine/consts"
	"github.com/xiaonanln/entitysync/engine/gwlog"
	"github.com/xiaonanln/pktconn"
)

const (
	_FLUSH_POLL_INTERVAL = time.Millisecond
)

var errFlushTimeout = errors.New("flush timeout")

// flushCounter counts the bytes written by pktconn and the bytes flushed to the network.
// Write and Flush are only called by the flush routine of pktconn.
type flushCounter struct {
	Connection
	written int64
	flushed atomic.Int64
}

func (fc *flushCounter) Write(b []byte) (int, error) {
	n, err := fc.Connection.Write(b)
	fc.written += int64(n)
	return n, err
}

func (fc *flushCounter) Flush() error {
	err := fc.Connection.Flush()
	if err == nil {
		fc.flushed.Store(fc.written)
	}
	return err
}

// PacketConnection is a connection that send and receive msgpack packets upon a network stream connection
//
// Packets are written and flushed by pktconn in the background. Send may be called from multiple
// goroutines. Recv must be called from one goroutine.
type PacketConnection struct {
	conn    *pktconn.PacketConn
	counter *flushCounter
	queued  atomic.Int64

	recvOnce sync.Once
	recvChan <-chan *pktconn.Packet
}

// NewPacketConnection creates a packet connection based on network connection
func NewPacketConnection(conn Connection) *PacketConnection {
	counter := &flushCounter{Connection: conn}
	config := pktconn.DefaultConfig()
	config.FlushDelay = consts.PACKET_FLUSH_DELAY
	config.MaxFlushDelay = consts.PACKET_MAX_FLUSH_DELAY
	return &PacketConnection{
		conn:    pktconn.NewPacketConnWithConfig(context.Background(), counter, config),
		counter: counter,
	}
}

// Send packs msg as a packet of msgtype and queues it for sending
func (pc *PacketConnection) Send(msgtype uint16, msg interface{}) error {
	if pc.IsClosed() {
		return errors.Wrapf(net.ErrClosed, "%s send", pc)
	}

	packet, err := newSendPacket(msgtype, msg)
	if err != nil {
		return err
	}
	if consts.DEBUG_PACKETS {
		gwlog.Debugf("%s: send msgtype %d, %d bytes", pc, msgtype, packet.GetPayloadLen())
	}

	pc.queued.Add(int64(SIZE_FIELD_SIZE + packet.GetPayloadLen()))
	pc.conn.Send(packet)
	packet.Release()
	return nil
}

// Flush waits until all packets sent so far are flushed to the network
func (pc *PacketConnection) Flush(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for pc.counter.flushed.Load() < pc.queued.Load() {
		if pc.IsClosed() {
			return errors.Wrapf(net.ErrClosed, "%s flush", pc)
		}
		if time.Now().After(deadline) {
			return errors.Wrapf(errFlushTimeout, "%s: %d bytes pending", pc, pc.queued.Load()-pc.counter.flushed.Load())
		}
		time.Sleep(_FLUSH_POLL_INTERVAL)
	}
	return nil
}

// Recv receives the next packet
func (pc *PacketConnection) Recv() (*Packet, error) {
	pc.recvOnce.Do(func() {
		pc.recvChan = pc.conn.RecvChanSize(pktconn.DefaultRecvChanSize)
	})

	pkt, ok := <-pc.recvChan
	if !ok {
		return nil, pc.closeError()
	}
	defer pkt.Release()

	packet, err := readPacket(pkt)
	if err != nil {
		return nil, errors.Wrapf(err, "%s recv", pc)
	}
	if consts.DEBUG_PACKETS {
		gwlog.Debugf("%s: recv %s", pc, packet)
	}
	return packet, nil
}

// closeError returns the error which closed the connection
func (pc *PacketConnection) closeError() error {
	err := pc.conn.Err()
	if err == nil || err == context.Canceled {
		err = io.EOF
	}
	return err
}

// Close the connection. Packets not flushed yet are dropped.
func (pc *PacketConnection) Close() error {
	return pc.conn.Close()
}

// IsClosed returns if the connection is closed
func (pc *PacketConnection) IsClosed() bool {
	select {
	case <-pc.conn.Done():
		return true
	default:
		return false
	}
}

// RemoteAddr return the remote address
func (pc *PacketConnection) RemoteAddr() net.Addr {
	return pc.conn.RemoteAddr()
}

// LocalAddr returns the local address
func (pc *PacketConnection) LocalAddr() net.Addr {
	return pc.conn.LocalAddr()
}

func (pc *PacketConnection) String() string {
	return fmt.Sprintf("[%s >>> %s]", pc.LocalAddr(), pc.RemoteAddr())
}
