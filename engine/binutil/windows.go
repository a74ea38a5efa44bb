//go:build windows

package binutil

import "github.com/xiaonanln/entitysync/engine/gwlog"

type nopRelease int

func (nopRelease) Release() error {
	return nil
}

// Daemonize does nothing on windows
func Daemonize(pidFile string) Releaser {
	gwlog.Warnf("can not run in daemon mode in windows, -d ignored")
	return nopRelease(0)
}
