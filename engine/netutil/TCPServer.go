package netutil

import (
	"context"
	"net"
	"time"

	"github.com/xiaonanln/entitysync/engine/gwioutil"
	"github.com/xiaonanln/entitysync/engine/gwlog"
)

const (
	_RESTART_TCP_SERVER_INTERVAL = 3 * time.Second
)

// TCPServerDelegate is the implementations that a TCP server should provide
type TCPServerDelegate interface {
	ServeTCPConnection(net.Conn)
}

// ServeTCPForever serves on specified address as TCP server until ctx is done, restarting on failures
func ServeTCPForever(ctx context.Context, listenAddr string, delegate TCPServerDelegate) {
	for {
		err := serveTCPForeverOnce(ctx, listenAddr, delegate)
		if ctx.Err() != nil {
			gwlog.Infof("server@%s stopped", listenAddr)
			return
		}
		gwlog.Errorf("server@%s failed with error: %v, will restart after %s", listenAddr, err, _RESTART_TCP_SERVER_INTERVAL)
		select {
		case <-ctx.Done():
			return
		case <-time.After(_RESTART_TCP_SERVER_INTERVAL):
		}
	}
}

func serveTCPForeverOnce(ctx context.Context, listenAddr string, delegate TCPServerDelegate) (err error) {
	defer func() {
		if perr := recover(); perr != nil {
			gwlog.TraceError("serveTCPImpl: paniced with error %s", perr)
		}
	}()

	return ServeTCP(ctx, listenAddr, delegate)
}

// ServeTCP serves on specified address as TCP server. The listener is closed when ctx is done.
func ServeTCP(ctx context.Context, listenAddr string, delegate TCPServerDelegate) error {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	gwlog.Infof("Listening on TCP: %s ...", ln.Addr())
	return ServeListener(ctx, ln, delegate)
}

// ServeListener accepts connections of ln and serves each one in a new goroutine
func ServeListener(ctx context.Context, ln net.Listener, delegate TCPServerDelegate) error {
	stop := context.AfterFunc(ctx, func() {
		ln.Close()
	})
	defer stop()
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if gwioutil.IsTimeoutError(err) {
				continue
			} else if ctx.Err() != nil {
				return ctx.Err()
			} else {
				return err
			}
		}

		gwlog.Infof("Connection from: %s", conn.RemoteAddr())
		go delegate.ServeTCPConnection(conn)
	}
}
