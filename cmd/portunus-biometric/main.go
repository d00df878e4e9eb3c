// portunus-biometric is the biometric access decision engine. It reads
// fingerprint queries from an R307 sensor line, matches them against the
// templates enrolled for one unit, answers YES or NO, opens the gate on a
// grant and records every decision in the access log.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/config"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/logging"
)

var modes = []string{"listener", "simulation", "query", "enroll", "test-db", "info"}

type options struct {
	Mode     string
	Unit     string
	Port     string
	Template string
	Finger   string
	Verbose  bool

	// enroll
	Name       string
	NationalID string
	PersonType string
	Encoding   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout)
	stop()

	if err != nil && !errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.Unit != "" {
		cfg.UnitCode = opts.Unit
	}
	if opts.Port != "" {
		cfg.SensorPort = opts.Port
	}
	if opts.Verbose {
		cfg.LogLevel = "debug"
	}

	logger, closer, err := logging.New(cfg.LogLevel, cfg.LogFile, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer closer.Close()

	if opts.Mode == "info" {
		printInfo(stdout, cfg)
		return nil
	}

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	switch opts.Mode {
	case "listener":
		return rt.runListener(ctx, opts.Verbose, stdout)
	case "simulation":
		return rt.runSimulation(ctx, stdout)
	case "query":
		return rt.runQuery(ctx, opts.Template, opts.Finger, stdout)
	case "enroll":
		return rt.runEnroll(ctx, opts, stdout)
	case "test-db":
		return rt.runTestDB(ctx, stdout)
	}
	return fmt.Errorf("unknown mode %q", opts.Mode)
}

func parseFlags(args []string, usageOut io.Writer) (options, error) {
	var o options
	fs := pflag.NewFlagSet("portunus-biometric", pflag.ContinueOnError)
	fs.SetOutput(usageOut)

	fs.StringVar(&o.Mode, "mode", "", "operation mode: "+strings.Join(modes, ", "))
	fs.StringVar(&o.Unit, "unit", "", "unit code (overrides PORTUNUS_UNIT_CODE)")
	fs.StringVar(&o.Port, "port", "", "sensor serial port (overrides SENSOR_PORT)")
	fs.StringVar(&o.Template, "template", "", "base64 template (query, enroll)")
	fs.StringVar(&o.Finger, "finger", "", "finger type, e.g. index_right (query, enroll)")
	fs.BoolVarP(&o.Verbose, "verbose", "v", false, "debug logging and per-frame output")
	fs.StringVar(&o.Name, "name", "", "person full name (enroll)")
	fs.StringVar(&o.NationalID, "national-id", "", "person national id (enroll)")
	fs.StringVar(&o.PersonType, "person-type", "other", "student, teacher, staff or other (enroll)")
	fs.StringVar(&o.Encoding, "encoding", "raw_bytes", "template encoding: raw_bytes or numeric_vector (enroll)")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if rest := fs.Args(); len(rest) > 0 {
		return options{}, fmt.Errorf("unexpected argument: %s", rest[0])
	}
	if !slices.Contains(modes, o.Mode) {
		return options{}, fmt.Errorf("--mode must be one of %s", strings.Join(modes, ", "))
	}
	switch o.Mode {
	case "query":
		if o.Template == "" || o.Finger == "" {
			return options{}, errors.New("--template and --finger are required for query mode")
		}
	case "enroll":
		if o.Template == "" || o.Finger == "" || o.Name == "" {
			return options{}, errors.New("--template, --finger and --name are required for enroll mode")
		}
	}
	return o, nil
}
