// Package gate accepts observer clients over TCP, KCP and WebSocket.
//
// Every client is a dispatcher client: its connection is the event sink, and the observer
// positions it sends are applied to the dispatcher by the packet routine of the gate.
package gate

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/xiaonanln/entitysync/engine/common"
	"github.com/xiaonanln/entitysync/engine/config"
	"github.com/xiaonanln/entitysync/engine/consts"
	"github.com/xiaonanln/entitysync/engine/dispatcher"
	"github.com/xiaonanln/entitysync/engine/gwlog"
	"github.com/xiaonanln/entitysync/engine/gwutils"
	"github.com/xiaonanln/entitysync/engine/netutil"
	"github.com/xiaonanln/entitysync/engine/opmon"
	"github.com/xiaonanln/entitysync/engine/post"
	"github.com/xiaonanln/entitysync/engine/proto"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"github.com/xtaci/kcp-go"
	"golang.org/x/net/websocket"
	"golang.org/x/sync/errgroup"
)

const (
	_HANDLE_PACKET_WARN_THRESHOLD = time.Millisecond * 100
)

// syncObserverItem is a MT_SYNC_OBSERVER_FROM_CLIENT message waiting for the packet routine
type syncObserverItem struct {
	cp  *ClientProxy
	msg proto.SyncObserverMsg
}

// Gate manages observer client connections
type Gate struct {
	cfg        *config.GateConfig
	disp       *dispatcher.Dispatcher
	listenAddr string

	ctx    context.Context
	cancel context.CancelFunc

	clientProxies     map[common.ClientID]*ClientProxy
	clientProxiesLock sync.RWMutex
	packetQueue       *xnsyncutil.SyncQueue
	post              post.Queue

	terminating xnsyncutil.AtomicBool
	terminated  *xnsyncutil.OneTimeCond
	stopped     bool
}

// New creates a gate adding its clients to disp
func New(cfg *config.GateConfig, disp *dispatcher.Dispatcher) *Gate {
	ctx, cancel := context.WithCancel(context.Background())
	return &Gate{
		cfg:           cfg,
		disp:          disp,
		listenAddr:    fmt.Sprintf("%s:%d", cfg.Ip, cfg.Port),
		ctx:           ctx,
		cancel:        cancel,
		clientProxies: map[common.ClientID]*ClientProxy{},
		packetQueue:   xnsyncutil.NewSyncQueue(),
		terminated:    xnsyncutil.NewOneTimeCond(),
	}
}

func (g *Gate) String() string {
	return fmt.Sprintf("Gate<%s>", g.listenAddr)
}

// Run starts the listeners configured in the gate config and runs the packet routine until Terminate
func (g *Gate) Run() {
	gwlog.Infof("%s: compress connection: %v, kcp: %v, websocket: %v", g, g.cfg.CompressConnection, g.cfg.EnableKCP, g.cfg.EnableWebSocket)

	if g.cfg.Port > 0 {
		go netutil.ServeTCPForever(g.ctx, g.listenAddr, g)
		if g.cfg.EnableKCP {
			go g.serveKCP(g.listenAddr)
		}
	}
	if g.cfg.HeartbeatCheckInterval > 0 {
		go g.checkHeartbeatRoutine(g.cfg.HeartbeatCheckInterval)
	}

	for !g.stopped {
		gwutils.RunPanicless(g.handlePacketRoutine)
	}
	gwlog.Infof("%s: stopped", g)
}

// Serve accepts TCP connections of ln until Terminate
func (g *Gate) Serve(ln net.Listener) error {
	return netutil.ServeListener(g.ctx, ln, g)
}

// ServeTCPConnection handle TCP connections from clients
func (g *Gate) ServeTCPConnection(conn net.Conn) {
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetWriteBuffer(consts.CLIENT_PROXY_WRITE_BUFFER_SIZE)
		tcpConn.SetReadBuffer(consts.CLIENT_PROXY_READ_BUFFER_SIZE)
		tcpConn.SetNoDelay(consts.CLIENT_PROXY_SET_TCP_NO_DELAY)
	}

	g.handleClientConnection(conn)
}

func (g *Gate) serveKCP(addr string) {
	kcpListener, err := kcp.ListenWithOptions(addr, nil, 10, 3)
	if err != nil {
		gwlog.Errorf("%s: listen KCP on %s failed: %v", g, addr, err)
		return
	}
	context.AfterFunc(g.ctx, func() {
		kcpListener.Close()
	})

	gwlog.Infof("Listening on KCP: %s ...", addr)

	for {
		conn, err := kcpListener.AcceptKCP()
		if err != nil {
			if g.ctx.Err() == nil {
				gwlog.Errorf("%s: accept KCP failed: %v", g, err)
			}
			return
		}
		go g.handleKCPConn(conn)
	}
}

func (g *Gate) handleKCPConn(conn *kcp.UDPSession) {
	gwlog.Infof("KCP connection from %s", conn.RemoteAddr())

	conn.SetReadBuffer(consts.CLIENT_PROXY_READ_BUFFER_SIZE)
	conn.SetWriteBuffer(consts.CLIENT_PROXY_WRITE_BUFFER_SIZE)
	// turbo mode
	conn.SetStreamMode(true)
	conn.SetWriteDelay(true)
	conn.SetNoDelay(1, 10, 2, 1)
	g.handleClientConnection(conn)
}

// HandleWebSocketConn serves a WebSocket client, used as the /ws handler of the HTTP server
func (g *Gate) HandleWebSocketConn(wsConn *websocket.Conn) {
	if consts.DEBUG_CLIENTS {
		gwlog.Debugf("WebSocket Connection: %s", wsConn.RemoteAddr())
	}
	wsConn.PayloadType = websocket.BinaryFrame
	g.handleClientConnection(wsConn)
}

func (g *Gate) handleClientConnection(netconn net.Conn) {
	if g.terminating.Load() {
		// terminating, not accepting more connections
		netconn.Close()
		return
	}

	cp := newClientProxy(netconn, g.cfg)

	g.clientProxiesLock.Lock()
	g.clientProxies[cp.clientid] = cp
	g.clientProxiesLock.Unlock()

	if consts.DEBUG_CLIENTS {
		gwlog.Debugf("%s: client %s connected", g, cp)
	}
	cp.serve(g.ctx, g)
}

// ClientCount returns the number of connected clients
func (g *Gate) ClientCount() int {
	g.clientProxiesLock.RLock()
	n := len(g.clientProxies)
	g.clientProxiesLock.RUnlock()
	return n
}

func (g *Gate) onClientProxyClose(cp *ClientProxy) {
	g.clientProxiesLock.Lock()
	delete(g.clientProxies, cp.clientid)
	g.clientProxiesLock.Unlock()

	if cp.registered {
		cp.registered = false
		g.disp.RemoveClient(cp.clientid)
	}
	if consts.DEBUG_CLIENTS {
		gwlog.Debugf("%s: client %s disconnected", g, cp)
	}
}

func (g *Gate) handleSyncObserver(cp *ClientProxy, msg *proto.SyncObserverMsg) {
	if cp.IsClosed() || g.terminating.Load() {
		return
	}
	if !cp.registered {
		cp.registered = true
		g.disp.AddClient(cp.clientid, msg.Position, msg.Dimension, cp)
	} else {
		g.disp.UpdateClient(cp.clientid, msg.Position, msg.Dimension)
	}
}

func (g *Gate) handlePacketRoutine() {
	for !g.stopped {
		item := g.packetQueue.Pop()
		if item, ok := item.(syncObserverItem); ok {
			op := opmon.StartOperation("GateHandleSyncObserver")
			g.handleSyncObserver(item.cp, &item.msg)
			op.Finish(_HANDLE_PACKET_WARN_THRESHOLD)
		}
		g.post.Tick()
	}
}

func (g *Gate) checkHeartbeatRoutine(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
		}

		g.clientProxiesLock.RLock()
		for _, cp := range g.clientProxies {
			if idle := cp.idleTime(); idle > interval {
				gwlog.Warnf("%s: %s timeout after %s without heartbeat", g, cp, idle)
				cp.Close()
			}
		}
		g.clientProxiesLock.RUnlock()
	}
}

// Terminate stops accepting connections, removes all clients from the dispatcher and closes them once
// the packets sent to them are flushed. Run must be running, Terminate returns after the packet routine quits.
func (g *Gate) Terminate() {
	if g.terminating.Load() {
		g.terminated.Wait()
		return
	}
	g.terminating.Store(true)
	g.cancel()

	g.post.Post(g.terminate)
	g.packetQueue.Push(nil)
	g.terminated.Wait()
}

// terminate runs in the packet routine
func (g *Gate) terminate() {
	g.clientProxiesLock.Lock()
	clientProxies := g.clientProxies
	g.clientProxies = map[common.ClientID]*ClientProxy{}
	g.clientProxiesLock.Unlock()

	for _, cp := range clientProxies {
		if cp.registered {
			cp.registered = false
			g.disp.RemoveClient(cp.clientid)
		}
	}

	// close all connected clients after the packets already sent to them are flushed
	var group errgroup.Group
	for _, cp := range clientProxies {
		group.Go(func() error {
			if err := cp.Flush(consts.CLIENT_PROXY_CLOSE_FLUSH_TIMEOUT); err != nil && !netutil.IsConnectionError(err) {
				gwlog.Warnf("%s: %s flush failed: %v", g, cp, err)
			}
			return cp.Close()
		})
	}
	_ = group.Wait()

	g.stopped = true
	gwlog.Infof("%s: terminated, %d clients closed", g, len(clientProxies))
	g.terminated.Signal()
}
