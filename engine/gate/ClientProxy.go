package gate

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/xiaonanln/entitysync/engine/common"
	"github.com/xiaonanln/entitysync/engine/config"
	"github.com/xiaonanln/entitysync/engine/consts"
	"github.com/xiaonanln/entitysync/engine/gwlog"
	"github.com/xiaonanln/entitysync/engine/netutil"
	"github.com/xiaonanln/entitysync/engine/proto"
	"github.com/xiaonanln/netconnutil"
	"golang.org/x/time/rate"
)

// ClientProxy is an observer client connection managed by the gate
type ClientProxy struct {
	*proto.ObserverConnection
	clientid      common.ClientID
	limiter       *rate.Limiter
	heartbeatTime atomic.Int64
	// registered is only accessed by the packet routine of the gate
	registered bool
}

func newClientProxy(_conn net.Conn, cfg *config.GateConfig) *ClientProxy {
	_conn = netconnutil.NewNoTempErrorConn(_conn)
	var conn netutil.Connection = netutil.NetConn{Conn: _conn}
	if cfg.CompressConnection {
		conn = netconnutil.NewSnappyConn(conn)
	}
	conn = netconnutil.NewBufferedConn(conn, consts.BUFFERED_READ_BUFFSIZE, consts.BUFFERED_WRITE_BUFFSIZE)

	limit := rate.Inf
	if cfg.UpdatesPerSecond > 0 {
		limit = rate.Limit(cfg.UpdatesPerSecond)
	}
	cp := &ClientProxy{
		ObserverConnection: proto.NewObserverConnection(conn),
		clientid:           common.GenClientID(), // each client has its unique clientid
		limiter:            rate.NewLimiter(limit, max(cfg.UpdateBurst, 1)),
	}
	cp.touch()
	return cp
}

func (cp *ClientProxy) String() string {
	return fmt.Sprintf("ClientProxy<%s@%s>", cp.clientid, cp.RemoteAddr())
}

// ClientID returns the id of the client in the dispatcher
func (cp *ClientProxy) ClientID() common.ClientID {
	return cp.clientid
}

func (cp *ClientProxy) touch() {
	cp.heartbeatTime.Store(time.Now().UnixNano())
}

func (cp *ClientProxy) idleTime() time.Duration {
	return time.Duration(time.Now().UnixNano() - cp.heartbeatTime.Load())
}

func (cp *ClientProxy) serve(ctx context.Context, g *Gate) {
	defer func() {
		cp.Close()
		// tell the gate that this client is down
		g.post.Post(func() {
			g.onClientProxyClose(cp)
		})
		g.packetQueue.Push(nil)

		if err := recover(); err != nil {
			gwlog.TraceError("%s paniced: %v", cp, err)
		}
	}()

	err := cp.recvLoop(ctx, g)
	if netutil.IsConnectionError(err) || ctx.Err() != nil || cp.IsClosed() {
		if consts.DEBUG_CLIENTS {
			gwlog.Debugf("%s disconnected: %v", cp, err)
		}
	} else {
		gwlog.Errorf("%s error: %v", cp, err)
	}
}

func (cp *ClientProxy) recvLoop(ctx context.Context, g *Gate) error {
	if err := cp.SendSetClientID(cp.clientid); err != nil {
		return err
	}

	for {
		var msgtype proto.MsgType
		packet, err := cp.Recv(&msgtype)
		if err != nil {
			return err
		}
		cp.touch()

		switch msgtype {
		case proto.MT_HEARTBEAT_FROM_CLIENT:
		case proto.MT_SYNC_OBSERVER_FROM_CLIENT:
			var msg proto.SyncObserverMsg
			if err := packet.Unpack(&msg); err != nil {
				return err
			}
			if err := cp.limiter.Wait(ctx); err != nil {
				return err
			}
			g.packetQueue.Push(syncObserverItem{cp: cp, msg: msg})
		default:
			return errors.Errorf("%s: unknown msg type: %s", cp, msgtype)
		}
	}
}
