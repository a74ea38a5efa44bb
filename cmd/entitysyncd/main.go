// Command entitysyncd runs the entity sync service with its observer gate.
package main

import (
	"context"
	"flag"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/pkg/profile"
	"github.com/xiaonanln/entitysync"
	"github.com/xiaonanln/entitysync/engine/binutil"
	"github.com/xiaonanln/entitysync/engine/common"
	"github.com/xiaonanln/entitysync/engine/config"
	"github.com/xiaonanln/entitysync/engine/gate"
	"github.com/xiaonanln/entitysync/engine/gwlog"
	"github.com/xiaonanln/entitysync/engine/gwvar"
	"golang.org/x/net/websocket"
)

var (
	args struct {
		configFile      string
		logLevel        string
		runInDaemonMode bool
		profile         string
	}
	signalChan = make(chan os.Signal, 1)
)

func parseArgs() {
	flag.StringVar(&args.configFile, "configfile", "", "set config file path")
	flag.StringVar(&args.logLevel, "log", "", "set log level, will override log level in config")
	flag.BoolVar(&args.runInDaemonMode, "d", false, "run in daemon mode")
	flag.StringVar(&args.profile, "profile", "", "write a profile to the working directory: cpu, mem, block, mutex or trace")
	flag.Parse()
}

func startProfile(mode string) interface{ Stop() } {
	var opt func(*profile.Profile)
	switch mode {
	case "":
		return nil
	case "cpu":
		opt = profile.CPUProfile
	case "mem":
		opt = profile.MemProfile
	case "block":
		opt = profile.BlockProfile
	case "mutex":
		opt = profile.MutexProfile
	case "trace":
		opt = profile.TraceProfile
	default:
		gwlog.Fatalf("unknown profile mode: %s", mode)
	}
	return profile.Start(opt, profile.ProfilePath("."), profile.NoShutdownHook)
}

func main() {
	parseArgs()
	if args.runInDaemonMode {
		daemoncontext := binutil.Daemonize("")
		defer daemoncontext.Release()
	}

	if args.configFile != "" {
		config.SetConfigFile(args.configFile)
	}
	cfg := config.Get()
	syncConfig := &cfg.Sync

	logLevel := args.logLevel
	if logLevel == "" {
		logLevel = syncConfig.LogLevel
	}
	binutil.SetupGWLog("entitysyncd", logLevel, syncConfig.LogFile, syncConfig.LogStderr)
	defer gwlog.Sync()

	if syncConfig.GoMaxProcs > 0 {
		gwlog.Infof("SET GOMAXPROCS = %d", syncConfig.GoMaxProcs)
		runtime.GOMAXPROCS(syncConfig.GoMaxProcs)
	}
	if p := startProfile(args.profile); p != nil {
		defer p.Stop()
	}

	facade, err := entitysync.New(cfg)
	if err != nil {
		gwlog.Fatalf("create entitysync failed: %+v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	facade.Start(ctx)

	gateService := gate.New(&cfg.Gate, facade.Dispatcher())
	var wsHandler func(*websocket.Conn)
	if cfg.Gate.EnableWebSocket {
		wsHandler = gateService.HandleWebSocketConn
	}
	gwvar.PublishFunc("EntitySync", func() interface{} {
		return facade.Summary()
	})
	binutil.SetupHTTPServer(syncConfig.HTTPIp, syncConfig.HTTPPort, wsHandler)
	go binutil.ReportStatus(ctx, syncConfig.StatusInterval, facade.Summary)

	setupSignals(facade, gateService)
	gwlog.Infof("entitysyncd registered: %d entity types, gate %s", common.EntityTypeCount, gateService)

	gwvar.IsServing.Set(true)
	gateService.Run()
	gwvar.IsServing.Set(false)

	cancel()
	gwlog.Infof("entitysyncd stopped")
}

// shutdown removes all entities and dispatches the removes while the observers are still connected,
// then terminates the gate which flushes them before closing the connections
func shutdown(facade *entitysync.Facade, gateService *gate.Gate) {
	facade.Shutdown()
	gateService.Terminate()
}

func setupSignals(facade *entitysync.Facade, gateService *gate.Gate) {
	gwlog.Infof("Setup signals ...")
	signal.Ignore(syscall.SIGPIPE, syscall.SIGHUP)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for {
			sig := <-signalChan
			if sig == syscall.SIGINT || sig == syscall.SIGTERM {
				gwlog.Infof("Terminating on signal %s ...", sig)
				shutdown(facade, gateService)
				return
			}
			gwlog.Errorf("unexpected signal: %s", sig)
		}
	}()
}
