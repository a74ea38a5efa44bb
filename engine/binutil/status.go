package binutil

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
	"github.com/xiaonanln/entitysync/engine/gwlog"
	"github.com/xiaonanln/entitysync/engine/opmon"
)

// ReportStatus logs the cpu percent and memory of the process with summary() every interval until ctx is done
func ReportStatus(ctx context.Context, interval time.Duration, summary func() string) {
	if interval <= 0 {
		return
	}

	pid := os.Getpid()
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		gwlog.Errorf("status: can not find process: pid = %v: %v", pid, err)
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		gwlog.Infof("status: %s", statusLine(ctx, p, summary))
		opmon.Dump()
	}
}

func statusLine(ctx context.Context, p *process.Process, summary func() string) string {
	cpu, err := p.CPUPercentWithContext(ctx)
	if err != nil {
		gwlog.Warnf("status: get process cpu percent failed: %v", err)
	}
	var rss uint64
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil {
		rss = mem.RSS
	}
	return fmt.Sprintf("cpu=%.1f%% rss=%dMB %s", cpu, rss/1024/1024, summary())
}
