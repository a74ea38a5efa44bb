package binutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/shirou/gopsutil/process"
	"github.com/xiaonanln/entitysync/engine/gwlog"
)

func TestSetupGWLog(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")
	SetupGWLog("binutil_test", "info", logFile, false)
	defer SetupGWLog("binutil_test", "debug", "", true)

	gwlog.Infof("hello log file")
	gwlog.Debugf("debug is filtered")
	gwlog.Sync()

	data, err := os.ReadFile(logFile)
	assert.Equal(t, nil, err)
	assert.T(t, strings.Contains(string(data), "hello log file"))
	assert.T(t, !strings.Contains(string(data), "debug is filtered"))
}

func TestStatusLine(t *testing.T) {
	p, err := process.NewProcess(int32(os.Getpid()))
	assert.Equal(t, nil, err)
	line := statusLine(context.Background(), p, func() string { return "clients=3" })
	assert.T(t, strings.HasPrefix(line, "cpu="), line)
	assert.T(t, strings.HasSuffix(line, "clients=3"), line)
}

func TestReportStatusStops(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*50)
	defer cancel()

	calls := 0
	done := make(chan struct{})
	go func() {
		ReportStatus(ctx, time.Millisecond*10, func() string {
			calls++
			return ""
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("ReportStatus should return when ctx is done")
	}
	assert.T(t, calls > 0)
}
