// Command printer-watchdog switches a 3D printer's main power on from a
// button and off again once OctoPrint has reported no print for a while.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/printer-watchdog/internal/config"
	"github.com/sweeney/printer-watchdog/internal/gpio"
	"github.com/sweeney/printer-watchdog/internal/logger"
	"github.com/sweeney/printer-watchdog/internal/mqtt"
	"github.com/sweeney/printer-watchdog/internal/status"
	"github.com/sweeney/printer-watchdog/internal/supervisor"
	"github.com/sweeney/printer-watchdog/internal/watchdog"
	"github.com/sweeney/printer-watchdog/internal/web"
)

// Exit codes.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(cli(os.Args[1:], os.Stderr))
}

// cli parses args and runs the watchdog, returning the process exit code.
func cli(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("printer-watchdog", flag.ContinueOnError)
	fs.SetOutput(stderr)
	httpAddr := fs.String("http", ":8080", "HTTP status address (empty to disable)")
	logLevel := fs.String("log-level", logger.InfoLevel, "Log level: debug, info, warn, error")
	fs.Usage = func() { usage(fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() != 1 {
		usage(fs)
		return exitUsage
	}

	return run(fs.Arg(0), *httpAddr, *logLevel)
}

func usage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "usage: %s [flags] <config.yml>\n", fs.Name())
	fs.PrintDefaults()
}

func run(path, httpAddr, level string) int {
	log := logger.New(level)
	defer log.Sync()

	snap, err := config.Load(path)
	if err != nil {
		log.Errorw("load config", "path", path, "err", err)
		return exitError
	}

	var publisher mqtt.Publisher = mqtt.Discard{}
	var broker *mqtt.RealPublisher
	if snap.MQTT.Enabled() {
		broker = mqtt.NewRealPublisher(snap.MQTT.Broker, snap.MQTT.ClientID, snap.MQTT.TopicPrefix, log)
		publisher = broker
	}
	defer publisher.Close()

	relay, backend, err := buildRelay(snap, broker, log)
	if err != nil {
		log.Errorw("init relay", "err", err)
		return exitError
	}

	button, err := gpio.NewRealEdgeSource(snap.Relay.Chip)
	if err != nil {
		relay.Close()
		log.Errorw("init gpio", "chip", snap.Relay.Chip, "err", err)
		return exitError
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		HTTPAddr:     httpAddr,
		RelayBackend: backend,
		Broker:       snap.MQTT.Broker,
	})

	if httpAddr != "" {
		srv := web.New(httpAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorw("http server", "err", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infow("http status server listening", "addr", httpAddr)
	}

	ctrl := watchdog.New(watchdog.Options{
		Load:         firstThen(snap, func() (*config.Snapshot, error) { return config.Load(path) }),
		Button:       button,
		Relay:        relay,
		RelayBackend: backend,
		Scheduler:    watchdog.Periodic(supervisor.New(logger.Cron{L: log})),
		Publisher:    publisher,
		Tracker:      tracker,
		Log:          log,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigCh)
	go handleSignals(ctrl, sigCh, log)

	log.Infow("started", "config", path, "relay", backend)
	if err := ctrl.Run(context.Background()); err != nil {
		log.Errorw("startup failed", "err", err)
		return exitError
	}
	log.Infow("stopped")
	return exitOK
}

// firstThen returns a loader that yields first once and then calls load.
// The start-up file is only read once. Called from the controller loop only.
func firstThen(first *config.Snapshot, load func() (*config.Snapshot, error)) func() (*config.Snapshot, error) {
	return func() (*config.Snapshot, error) {
		if first != nil {
			s := first
			first = nil
			return s, nil
		}
		return load()
	}
}

// buildRelay picks the relay back-end: a GPIO line when RELAY_CHANNEL is
// set, an MQTT smart plug when MQTT_RELAY_TOPIC is set, otherwise a relay
// that only logs.
func buildRelay(snap *config.Snapshot, pub *mqtt.RealPublisher, log *zap.SugaredLogger) (watchdog.Relay, string, error) {
	switch {
	case snap.Relay.Enabled:
		r, err := gpio.NewRealRelay(snap.Relay.Chip, snap.Relay.Channel, snap.Relay.ActiveLow)
		if err != nil {
			return nil, "", err
		}
		return r, "gpio", nil
	case snap.MQTT.RelayTopic != "" && pub != nil:
		return pub.Relay(snap.MQTT.RelayTopic), "mqtt", nil
	default:
		log.Warnw("no relay configured, power actions are logged only")
		return logRelay{log: log}, "log", nil
	}
}

// logRelay stands in for a relay when none is configured.
type logRelay struct {
	log *zap.SugaredLogger
}

func (r logRelay) Energize(context.Context) error {
	r.log.Infow("relay (log only): energize")
	return nil
}

func (r logRelay) DeEnergize(context.Context) error {
	r.log.Infow("relay (log only): de-energize")
	return nil
}

func (logRelay) Close() error { return nil }

// controller is the part of the watchdog driven by signals.
type controller interface {
	Reload(trigger string) error
	Quit(trigger string) error
	Done() <-chan struct{}
}

// handleSignals maps SIGHUP to Reload and termination signals to Quit. It
// returns after Quit or once the controller has stopped on its own.
func handleSignals(ctrl controller, sig <-chan os.Signal, log *zap.SugaredLogger) {
	for {
		select {
		case s := <-sig:
			name := signalName(s)
			if s == syscall.SIGHUP {
				log.Infow("reload requested", "signal", name)
				if err := ctrl.Reload(name); err != nil {
					log.Errorw("reload failed", "err", err)
				}
				continue
			}
			log.Infow("received signal, shutting down", "signal", name)
			if err := ctrl.Quit(name); err != nil {
				log.Errorw("quit", "err", err)
			}
			return
		case <-ctrl.Done():
			return
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGHUP:
		return "SIGHUP"
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGQUIT:
		return "SIGQUIT"
	default:
		return "UNKNOWN"
	}
}
