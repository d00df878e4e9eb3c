package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BrandonDHaskell/Portunus/biometric/internal/config"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/gate"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/grpcapi"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/httpapi"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/protocol"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/types"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/sensor"
)

const version = "1.0.0"

// runListener serves the sensor line until ctx is cancelled or the link
// drops. The operator HTTP API, gRPC health and the heartbeat pruner run
// alongside when configured.
func (rt *runtime) runListener(ctx context.Context, verbose bool, stdout io.Writer) error {
	g, closeGate, err := rt.gate()
	if err != nil {
		return err
	}
	defer closeGate()

	rwc, err := sensor.OpenSerial(rt.cfg.SensorPort, rt.cfg.SensorBaud)
	if err != nil {
		return err
	}
	rt.log.WithField("port", rt.cfg.SensorPort).WithField("baud", rt.cfg.SensorBaud).Info("sensor connected")

	queries := rt.queryService(g)
	heartbeats := service.NewHeartbeatService(rt.store, rt.session, rt.cfg.SensorPort)
	listener := sensor.NewListener(sensor.NewLineTransport(rwc), service.NewCommandHandler(queries, heartbeats, rt.log), rt.cfg.PollInterval, rt.log)
	if verbose {
		listener.OnResponse = func(r service.Response) { printResponse(stdout, r) }
	}

	if rt.cfg.HeartbeatRetentionDays > 0 {
		pruner := service.NewHeartbeatPruner(rt.store, service.PrunerConfig{
			RetentionDays: rt.cfg.HeartbeatRetentionDays,
			IntervalHours: rt.cfg.PruneIntervalHours,
		}, rt.log)
		pruner.Start(ctx)
		defer pruner.Stop()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	if rt.cfg.HTTPAddr != "" {
		srv := httpapi.NewServer(httpapi.Dependencies{
			Logger:  rt.log.WithField("component", "httpapi"),
			Addr:    rt.cfg.HTTPAddr,
			Queries: rt.queryService(gate.Nop{}),
			Store:   rt.store,
		})
		eg.Go(func() error {
			rt.log.WithField("addr", rt.cfg.HTTPAddr).Info("operator API listening")
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("operator API: %w", err)
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if rt.cfg.GRPCAddr != "" {
		hs, err := grpcapi.New(rt.cfg.GRPCAddr, rt.store, grpcapi.DefaultCheckInterval, rt.log.WithField("component", "grpcapi"))
		if err != nil {
			_ = rwc.Close()
			return err
		}
		eg.Go(func() error { return hs.Serve(ctx) })
	}

	eg.Go(func() error {
		defer cancel()
		return listener.Run(ctx)
	})

	err = eg.Wait()
	rt.log.WithField("audit_failures", queries.AuditFailures()).Info("listener stopped")
	return err
}

func (rt *runtime) gate() (service.Gate, func(), error) {
	if rt.cfg.GatePin <= 0 {
		return gate.Logging{Log: rt.log}, func() {}, nil
	}
	g, err := gate.NewSysfs(gate.DefaultSysfsRoot, rt.cfg.GatePin, rt.cfg.GateOpenTime, rt.log)
	if err != nil {
		return nil, nil, err
	}
	return g, func() { _ = g.Close() }, nil
}

type scenario struct {
	name     string
	template string
	finger   string
}

// simulationScenarios are the four canned sensor readings: a well-formed
// query, an unknown finger, an empty template and undecodable base64.
var simulationScenarios = []scenario{
	{"Valid biometric template", "VGVzdCBiaW9tZXRyaWMgdGVtcGxhdGUgZGF0YQ==", "index_right"},
	{"Invalid finger type", "VGVzdCBiaW9tZXRyaWMgdGVtcGxhdGUgZGF0YQ==", "invalid_finger"},
	{"Empty template", "", "thumb_left"},
	{"Invalid base64 template", "invalid_base64_data!!!", "middle_right"},
}

// runSimulation feeds the scenarios through the same frame handler the
// listener uses, with a gate that only logs.
func (rt *runtime) runSimulation(ctx context.Context, stdout io.Writer) error {
	if err := rt.store.Ping(ctx); err != nil {
		return fmt.Errorf("database connection: %w", err)
	}
	fmt.Fprintf(stdout, "Simulation for unit %s (%s strategy)\n", rt.session.Unit.UnitCode, rt.matcher.Strategy())

	h := service.NewCommandHandler(rt.queryService(gate.Logging{Log: rt.log}), nil, rt.log)
	for i, sc := range simulationScenarios {
		line := strings.Join([]string{string(protocol.CommandQuery), sc.template, sc.finger}, protocol.Delimiter)
		resp, _ := h.Handle(ctx, line)

		fmt.Fprintf(stdout, "\n%d. %s\n", i+1, sc.name)
		fmt.Fprintf(stdout, "   finger:  %s\n", sc.finger)
		fmt.Fprintf(stdout, "   result:  %s\n", resp.Label)
		fmt.Fprintf(stdout, "   reply:   %s", resp.Reply)
		if resp.Query != nil && resp.Query.Error != "" {
			fmt.Fprintf(stdout, "   error:   %s\n", resp.Query.Error)
		}
	}
	return nil
}

// runQuery runs one decision cycle and prints the result as JSON.
func (rt *runtime) runQuery(ctx context.Context, template, finger string, stdout io.Writer) error {
	res := rt.queryService(gate.Logging{Log: rt.log}).Process(ctx, types.QueryRequest{
		Template: template,
		Finger:   finger,
	})
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func (rt *runtime) runEnroll(ctx context.Context, o options, stdout io.Writer) error {
	pt, err := types.ParsePersonType(o.PersonType)
	if err != nil {
		return err
	}
	enc, err := types.ParseEncoding(o.Encoding)
	if err != nil {
		return err
	}

	res, err := service.NewEnrollmentService(rt.store, rt.key, rt.log).Enroll(ctx, service.EnrollRequest{
		Unit:     rt.session.Unit,
		Person:   types.Person{FullName: o.Name, NationalID: o.NationalID, Type: pt},
		Finger:   o.Finger,
		Template: o.Template,
		Encoding: enc,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "enrolled person %d (%s) finger %s as template %d\n",
		res.Person.ID, res.Person.FullName, res.Finger, res.TemplateID)
	return nil
}

func (rt *runtime) runTestDB(ctx context.Context, stdout io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rt.store.Ping(ctx); err != nil {
		fmt.Fprintln(stdout, "database connection: FAILED")
		return err
	}
	fmt.Fprintf(stdout, "database connection: OK (%s)\n", rt.cfg.DBDriver)
	return nil
}

// printInfo shows the effective configuration. Secrets and the database
// URL are never printed.
func printInfo(w io.Writer, cfg config.Config) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "stderr only"
	}
	rows := [][2]string{
		{"Version", version},
		{"Environment", cfg.Env},
		{"Unit code", cfg.UnitCode},
		{"Database driver", cfg.DBDriver},
		{"Match strategy", cfg.MatchStrategy},
		{"Sensor device", cfg.SensorDevice},
		{"Sensor port", cfg.SensorPort},
		{"Sensor baudrate", fmt.Sprint(cfg.SensorBaud)},
		{"Template cache", onOff(cfg.RedisAddr != "")},
		{"Gate GPIO pin", fmt.Sprint(cfg.GatePin)},
		{"Log level", cfg.LogLevel},
		{"Log file", logFile},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s:\t%s\n", r[0], r[1])
	}
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func printResponse(w io.Writer, r service.Response) {
	if r.Query == nil {
		fmt.Fprintf(w, "%s -> %s", r.Label, r.Reply)
		return
	}
	fmt.Fprintf(w, "%s %s -> %s (query %s)\n", r.Command.Type, r.Query.Result, strings.TrimSpace(r.Reply), r.Query.QueryID)
}
