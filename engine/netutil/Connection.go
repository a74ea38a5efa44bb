package netutil

import (
	"net"

	"github.com/xiaonanln/netconnutil"
)

// Connection is a network stream connection which buffers writes until Flush
type Connection interface {
	netconnutil.FlushableConn
}

// NetConn adapts a net.Conn which writes directly to Connection
type NetConn struct {
	net.Conn
}

// Flush does nothing, writes of NetConn are not buffered
func (n NetConn) Flush() error {
	return nil
}
