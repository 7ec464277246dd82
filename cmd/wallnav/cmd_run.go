package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/wallnav/internal/api"
	"github.com/banshee-data/wallnav/internal/bridge"
	"github.com/banshee-data/wallnav/internal/config"
	"github.com/banshee-data/wallnav/internal/db"
	"github.com/banshee-data/wallnav/internal/fsutil"
	"github.com/banshee-data/wallnav/internal/mapsink"
	"github.com/banshee-data/wallnav/internal/monitoring"
	"github.com/banshee-data/wallnav/internal/nav"
	"github.com/banshee-data/wallnav/internal/serialmux"
	"github.com/banshee-data/wallnav/internal/timeutil"
	"github.com/banshee-data/wallnav/internal/version"
	"github.com/banshee-data/wallnav/internal/visualiser"
)

type runFlags struct {
	port       string
	portOpts   serialmux.PortOptions
	noSerial   bool
	mapDir     string
	listen     string
	grpcListen string
	configPath string
	launch     string
	note       string
	duration   time.Duration
	dev        bool
}

func newRunCmd(rf *rootFlags) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive the robot until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runNavigation(cmd.Context(), rf, &f)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.port, "port", "/dev/ttyUSB0", "serial port of the robot base bridge")
	fl.IntVar(&f.portOpts.BaudRate, "baud", serialmux.DefaultBaudRate, "serial baud rate")
	fl.StringVar(&f.portOpts.Framing, "framing", serialmux.DefaultFraming, "serial data bits, parity and stop bits")
	fl.BoolVar(&f.noSerial, "no-serial", false, "run without a robot base; outbound lines are kept for /debug/")
	fl.StringVar(&f.mapDir, "map-dir", "maps", "directory for map.png, map.txt and final_state.json")
	fl.StringVar(&f.listen, "listen", "localhost:8080", "debug HTTP listen address (empty disables)")
	fl.StringVar(&f.grpcListen, "grpc-listen", "", "gRPC status stream listen address, e.g. localhost:50051 (empty disables)")
	fl.StringVar(&f.configPath, "config", "", "navigation config (.json, .yaml or .yml); built-in defaults when empty")
	fl.StringVar(&f.launch, "launch", "", "shell command started once before navigation, e.g. a visualiser")
	fl.StringVar(&f.note, "note", "", "free-form note stored with the run")
	fl.DurationVar(&f.duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	fl.BoolVar(&f.dev, "dev", false, "read DB migrations from internal/db/migrations")
	return cmd
}

func loadNavConfig(path string) (*config.NavConfig, error) {
	if path == "" {
		return config.EmptyNavConfig(), nil
	}
	return config.LoadNavConfig(path)
}

func openLink(f *runFlags) (serialmux.SerialMuxInterface, error) {
	if f.noSerial {
		monitoring.Logf("Serial disabled; commands are retained for /debug/tail")
		return serialmux.NewDisabledSerialMux(), nil
	}
	if f.port == "" {
		return nil, errors.New("serial port is required (or pass --no-serial)")
	}
	m, err := serialmux.OpenRobotLink(f.port, f.portOpts)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ignoreShutdown drops the errors every goroutine returns on a clean stop.
func ignoreShutdown(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func runNavigation(parent context.Context, rf *rootFlags, f *runFlags) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := loadNavConfig(f.configPath)
	if err != nil {
		return err
	}
	monitoring.Logf("Starting %s", version.String())

	clock := timeutil.RealClock{}
	link, err := openLink(f)
	if err != nil {
		return err
	}
	defer link.Close()

	inbox := nav.NewInbox()
	frames := bridge.Frames{Map: cfg.GetMapFrame(), Base: cfg.GetBaseFrame()}
	tf := bridge.NewTransformBuffer(clock, cfg.GetTransformTolerance())
	sink := mapsink.NewPlotSink(fsutil.OSFileSystem{}, f.mapDir)
	br := bridge.New(link, inbox, tf, sink, frames)
	posePub := bridge.NewPosePublisher(link, tf, frames, clock, cfg.GetPosePublishInterval())

	tlog := nav.NewTransitionLog(clock)
	var (
		recorder nav.WaypointRecorder
		database *db.DB
		run      *db.Run
	)
	if rf.dbPath != "" {
		db.DevMode = f.dev
		database, err = db.NewDB(rf.dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer database.Close()
		run, err = database.StartRun(clock.Now(), f.note)
		if err != nil {
			return err
		}
		store := db.NewWaypointStore(database, run.ID, clock)
		recorder = store
		tlog.OnTransition = store.RecordTransition
		monitoring.Logf("Recording run %s in %s", run.ID, rf.dbPath)
	}

	params := nav.ParamsFromConfig(cfg)
	stuckCfg := nav.StuckPolicyConfigFromConfig(cfg)
	mission := nav.NewMissionCoordinator(tlog, recorder, nav.NewStuckLoopPolicy(stuckCfg, clock))
	cells := nav.NewCells(inbox, mission, cfg.GetPollInterval())
	cells.OnPose = sink.ObservePose
	loop := nav.NewNavigationLoop(nav.LoopConfig{
		Sensors:  cells,
		Pub:      br,
		Sink:     sink,
		Mission:  mission,
		Log:      tlog,
		Clock:    clock,
		Params:   params,
		Maneuver: nav.ManeuverConfigFromConfig(cfg),
		Stuck:    stuckCfg,
	})

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if f.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.duration)
		defer cancel()
	}

	if f.launch != "" {
		launch := exec.CommandContext(ctx, "sh", "-c", f.launch)
		launch.Stdout, launch.Stderr = os.Stdout, os.Stderr
		if err := launch.Start(); err != nil {
			monitoring.Diagf("launch %q failed: %v", f.launch, err)
		} else {
			go func() { _ = launch.Wait() }()
		}
	}

	var grpcLis net.Listener
	if f.grpcListen != "" {
		grpcLis, err = net.Listen("tcp", f.grpcListen)
		if err != nil {
			return fmt.Errorf("listen for gRPC on %s: %w", f.grpcListen, err)
		}
		defer grpcLis.Close()
	}

	g, gctx := errgroup.WithContext(ctx)

	// run the monitor routine to manage IO on the serial port
	g.Go(func() error {
		err := link.Monitor(gctx)
		monitoring.Logf("monitor routine terminated")
		return ignoreShutdown(err)
	})
	g.Go(func() error { return ignoreShutdown(br.Run(gctx)) })
	g.Go(func() error { return ignoreShutdown(posePub.Run(gctx)) })
	g.Go(func() error {
		err := loop.Run(gctx)
		monitoring.Logf("navigation loop stopped")
		return ignoreShutdown(err)
	})

	if grpcLis != nil {
		vis := visualiser.NewServer(loop, clock, visualiser.DefaultInterval)
		g.Go(func() error { return vis.Serve(gctx, grpcLis) })
	}

	if f.listen != "" {
		server := api.NewServer(api.Deps{
			Loop:       loop,
			Inbox:      inbox,
			Link:       link,
			Bridge:     br,
			Trajectory: sink,
			DB:         database,
			RunID:      runID(run),
		})
		mux, err := server.ServeMux()
		if err != nil {
			return err
		}
		httpServer := &http.Server{Addr: f.listen, Handler: api.LoggingMiddleware(mux)}
		g.Go(func() error { return ignoreShutdown(httpServer.ListenAndServe()) })
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				monitoring.Logf("HTTP server shutdown error: %v", err)
				return httpServer.Close()
			}
			return nil
		})
	}

	runErr := g.Wait()
	if database != nil {
		if err := database.FinishRun(run.ID, clock.Now(), loop.Status().WallOffset); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}
	monitoring.Logf("Graceful shutdown complete")
	return runErr
}

func runID(run *db.Run) string {
	if run == nil {
		return ""
	}
	return run.ID
}
