// Room Sync Core - real-time room state over MQTT
//
// This is the main entry point for the roomsync binary. It runs in one of
// four modes:
//   - serve (default): sync engine, REST/WebSocket API and optional InfluxDB export
//   - sub: print every message on a topic filter until interrupted
//   - pub: publish a message one or more times
//   - device: simulated room device answering control topics with state and telemetry
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/roomsync-core/internal/infrastructure/config"
	"github.com/nerrad567/roomsync-core/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// Run modes.
const (
	modeServe  = "serve"
	modeSub    = "sub"
	modePub    = "pub"
	modeDevice = "device"
)

// errUsage marks command-line errors; main exits 2 for them.
var errUsage = errors.New("usage")

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// options holds the parsed command line.
type options struct {
	mode       string
	configPath string

	// Broker overrides; zero values leave the configuration alone.
	host     string
	port     int
	username string
	password string
	clientID string
	qos      int

	// serve
	room string

	// sub / pub
	topic    string
	message  string
	count    int
	interval time.Duration
	retain   bool

	// device
	baseTopic         string
	telemetryInterval time.Duration

	// set records which flags were given explicitly.
	set map[string]bool
}

// parseArgs parses "[mode] [flags]". The mode defaults to serve.
func parseArgs(args []string, stderr io.Writer) (*options, error) {
	opts := &options{mode: modeServe, set: make(map[string]bool)}
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		opts.mode = args[0]
		args = args[1:]
	}
	switch opts.mode {
	case modeServe, modeSub, modePub, modeDevice:
	default:
		return nil, fmt.Errorf("%w: unknown mode %q (want serve, sub, pub or device)", errUsage, opts.mode)
	}

	fs := flag.NewFlagSet("roomsync "+opts.mode, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "path to the YAML configuration file")
	fs.StringVar(&opts.host, "host", "", "MQTT broker host")
	fs.IntVar(&opts.port, "port", 0, "MQTT broker port")
	fs.StringVar(&opts.username, "username", "", "MQTT username")
	fs.StringVar(&opts.password, "password", "", "MQTT password")
	fs.StringVar(&opts.clientID, "client-id", "", "MQTT client id (default roomsync-<uuid>)")
	fs.IntVar(&opts.qos, "qos", -1, "MQTT QoS 0, 1 or 2 (default from configuration)")
	fs.StringVar(&opts.room, "room", "", "room to follow on start (serve)")
	fs.StringVar(&opts.topic, "topic", "", "topic or filter (sub, pub)")
	fs.StringVar(&opts.message, "message", "", "payload (pub)")
	fs.IntVar(&opts.count, "count", 1, "number of messages to publish (pub)")
	fs.DurationVar(&opts.interval, "interval", time.Second, "delay between messages (pub)")
	fs.BoolVar(&opts.retain, "retain", false, "set the retain flag (pub)")
	fs.StringVar(&opts.baseTopic, "base-topic", "office/room1", "device base topic (device)")
	fs.DurationVar(&opts.telemetryInterval, "telemetry-interval", 5*time.Second, "delay between telemetry publishes (device)")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	return opts, nil
}

func (o *options) validate() error {
	if o.set["qos"] && (o.qos < 0 || o.qos > 2) {
		return fmt.Errorf("-qos must be 0, 1 or 2")
	}
	switch o.mode {
	case modeSub:
		if o.topic == "" {
			return fmt.Errorf("sub requires -topic")
		}
	case modePub:
		if o.topic == "" || !o.set["message"] {
			return fmt.Errorf("pub requires -topic and -message")
		}
		if o.count < 1 {
			return fmt.Errorf("-count must be at least 1")
		}
		if o.interval < 0 {
			return fmt.Errorf("-interval cannot be negative")
		}
	case modeDevice:
		if strings.Trim(o.baseTopic, "/") == "" {
			return fmt.Errorf("device requires -base-topic")
		}
		if o.telemetryInterval <= 0 {
			return fmt.Errorf("-telemetry-interval must be positive")
		}
	}
	return nil
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments without the program name
//   - stdout: Destination for sub/pub/device output
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseArgs(args, os.Stderr)
	if err != nil {
		return err
	}

	cfg, configPath, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting Room Sync Core",
		"mode", opts.mode,
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", configPath,
	)

	switch opts.mode {
	case modeSub:
		return runSub(ctx, cfg, log, opts.topic, stdout)
	case modePub:
		return runPub(ctx, cfg, log, pubOptions{
			topic:    opts.topic,
			message:  opts.message,
			count:    opts.count,
			interval: opts.interval,
			retain:   opts.retain,
		}, stdout)
	case modeDevice:
		return runDevice(ctx, cfg, log, strings.TrimRight(opts.baseTopic, "/"), opts.telemetryInterval, stdout)
	default:
		return runServe(ctx, cfg, log)
	}
}

// getConfigPath returns the configuration file path and whether it was
// chosen explicitly. Uses -config, then ROOMSYNC_CONFIG, then the default.
func getConfigPath(flagPath string) (string, bool) {
	if flagPath != "" {
		return flagPath, true
	}
	if path := os.Getenv("ROOMSYNC_CONFIG"); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// loadConfig loads the configuration file. A missing default file falls
// back to built-in defaults so the tool modes work without one.
// Validation is left to the caller so flag overrides can apply first.
func loadConfig(opts *options) (*config.Config, string, error) {
	path, explicit := getConfigPath(opts.configPath)
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return config.Default(), "(defaults)", nil
		}
	}

	cfg, err := config.LoadUnvalidated(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// apply writes explicit flag values over the configuration and fills in a
// client id when none is configured.
func (o *options) apply(cfg *config.Config) {
	if o.set["host"] {
		cfg.MQTT.Broker.Host = o.host
		cfg.MQTT.Broker.URL = ""
	}
	if o.set["port"] {
		cfg.MQTT.Broker.Port = o.port
		cfg.MQTT.Broker.URL = ""
	}
	if o.set["username"] {
		cfg.MQTT.Auth.Username = o.username
	}
	if o.set["password"] {
		cfg.MQTT.Auth.Password = o.password
	}
	if o.set["client-id"] {
		cfg.MQTT.Broker.ClientID = o.clientID
	}
	if o.set["qos"] {
		cfg.MQTT.QoS = o.qos
	}
	if o.set["room"] {
		cfg.Sync.DefaultRoom = o.room
	}

	if cfg.MQTT.Broker.ClientID == "" {
		cfg.MQTT.Broker.ClientID = "roomsync-" + uuid.NewString()
	}

	// The tool modes print their results on stdout.
	if o.mode != modeServe && (cfg.Logging.Output == "" || strings.EqualFold(cfg.Logging.Output, "stdout")) {
		cfg.Logging.Output = "stderr"
	}
}
