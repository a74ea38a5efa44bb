//go:build !windows

package binutil

import (
	"os"

	"github.com/sevlyar/go-daemon"
	"github.com/xiaonanln/entitysync/engine/gwlog"
)

// Daemonize reruns the process in background and exits the parent. In the child it returns the
// daemon context, which should be released before exit.
func Daemonize(pidFile string) Releaser {
	dctx := &daemon.Context{
		PidFileName: pidFile,
		PidFilePerm: 0644,
	}
	child, err := dctx.Reborn()
	if err != nil {
		// daemonize failed
		gwlog.Panicf("daemonize failed: %v", err)
	}

	if child != nil {
		gwlog.Infof("run in daemon mode, pid %d", child.Pid)
		os.Exit(0)
	}
	return dctx
}
