package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/fprime-community/fprime-amsat-reference/internal/aprs"
	"github.com/fprime-community/fprime-amsat-reference/internal/capture"
	"github.com/fprime-community/fprime-amsat-reference/internal/config"
	"github.com/fprime-community/fprime-amsat-reference/internal/device"
	"github.com/fprime-community/fprime-amsat-reference/internal/device/portaudio"
	"github.com/fprime-community/fprime-amsat-reference/internal/logging"
	"github.com/fprime-community/fprime-amsat-reference/internal/metrics"
	"github.com/fprime-community/fprime-amsat-reference/internal/scheduler"
	"github.com/fprime-community/fprime-amsat-reference/internal/server"
	"github.com/fprime-community/fprime-amsat-reference/internal/telemetry"
	"github.com/fprime-community/fprime-amsat-reference/internal/transport"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "payload-audio-relay"
)

var (
	version    = "0.1.0"
	cfgFile    string
	simulate   bool
	recordPath string
)

var rootCmd = &cobra.Command{
	Use:          "relay",
	Short:        "Payload audio relay",
	Long:         `Payload audio relay - captures audio from a USB sound card, frames it into sequenced UDP packets and ingests APRS telemetry over TCP`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the capture, downlink and ingestion components",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Receive and validate a downlink packet stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMonitor()
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio capture devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listDevices(cmd.OutOrStdout())
	},
}

var sendAPRSCmd = &cobra.Command{
	Use:   "send-aprs [address] [message]",
	Short: "Send one ingestion message, e.g. 'APRS_TLM LAT=45.5 LON=-122.6 CALL=W1AW'",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendAPRS(args[0], args[1])
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s v%s\n", serviceName, version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultConfigPath, "path to configuration file")
	serveCmd.Flags().BoolVar(&simulate, "simulate", false, "capture from a synthetic tone instead of PortAudio")
	monitorCmd.Flags().StringVar(&recordPath, "record", "", "write reassembled downlink audio to this WAV file on exit")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(sendAPRSCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, falling back to defaults when the
// default path does not exist
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err == nil {
		return cfg, nil
	}
	if cfgFile == defaultConfigPath && errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return nil, err
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, logCloser := logging.New(cfg.Logging)
	defer logCloser.Close()

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", version),
		slog.String("config_path", cfgFile),
		slog.Bool("simulate", simulate),
	)
	logger.Info("Configuration loaded",
		slog.Any("devices", cfg.Capture.Devices),
		slog.Int("sample_rate", cfg.Capture.SampleRate),
		slog.Int("buffer_samples", cfg.Capture.BufferSamples),
		slog.String("destination", cfg.Transmission.Destination),
		slog.Bool("aprs_enabled", cfg.APRS.Enabled),
		slog.String("aprs_address", cfg.APRS.GetAddress()),
		slog.Duration("tick_interval", cfg.Scheduler.GetTickInterval()),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(reg)

	recorder := telemetry.NewRecorder(cfg.HTTP.EventHistory)
	hub := server.NewEventHub(0)
	hub.OnClientsChanged(appMetrics.SetEventClients)
	logSink := telemetry.NewLogSink(logger)

	tlm := telemetry.MultiSink(recorder, appMetrics, hub)
	events := telemetry.MultiEventSink(logSink, recorder, appMetrics, hub)
	responder := telemetry.MultiResponder(logSink, appMetrics)

	var packets transport.PacketSink = transport.Discard{}
	if cfg.Transmission.Destination != "" {
		sink, err := transport.NewUDPSink(cfg.Transmission.Destination, logger)
		if err != nil {
			return fmt.Errorf("failed to open downlink: %w", err)
		}
		defer sink.Close()
		packets = sink
	} else {
		logger.Warn("No downlink destination configured, packets will be discarded")
	}

	var backend device.Backend
	if simulate {
		backend = device.NewSimulatedBackend(cfg.Capture.SimulateAmplitude)
	} else {
		host, err := portaudio.NewBackend(logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := host.Terminate(); err != nil {
				logger.Warn("Failed to terminate PortAudio", slog.String("error", err.Error()))
			}
		}()
		backend = host
	}

	mgr := capture.NewManager(captureConfig(cfg), backend, packets, tlm, events, logger)
	defer mgr.Close()

	dispatcher := scheduler.NewDispatcher(responder, logger)
	dispatcher.Register("START_CAPTURE", mgr.StartCapture)
	dispatcher.Register("STOP_CAPTURE", mgr.StopCapture)
	dispatcher.Register("START_TRANSMISSION", mgr.StartTransmission)
	dispatcher.Register("STOP_TRANSMISSION", mgr.StopTransmission)
	dispatcher.Register("SEND_TEST_PACKET", mgr.SendTestPacket)

	group := scheduler.NewRateGroup(cfg.Scheduler.GetTickInterval(), dispatcher, logger)
	group.Register("audio", mgr)

	var ingest *aprs.Server
	if cfg.APRS.Enabled {
		ingest = aprs.NewServer(aprs.Config{
			BindAddress:     cfg.APRS.BindAddress,
			Port:            cfg.APRS.Port,
			Backlog:         cfg.APRS.Backlog,
			MaxMessageBytes: cfg.APRS.MaxMessageBytes,
			Tag:             cfg.APRS.Tag,
		}, tlm, events, logger)
		defer ingest.Close()
		group.Register("aprs", ingest)
	}

	groupDone := make(chan struct{})
	go func() {
		defer close(groupDone)
		group.Run(ctx)
	}()
	defer func() {
		stop()
		<-groupDone
	}()

	var boot []string
	if cfg.Capture.StartOnBoot {
		boot = append(boot, "START_CAPTURE")
	}
	if cfg.Transmission.StartOnBoot {
		boot = append(boot, "START_TRANSMISSION")
	}
	for _, opcode := range boot {
		if _, err := group.Submit(ctx, opcode); err != nil {
			logger.Error("Boot command not executed",
				slog.String("opcode", opcode),
				slog.String("error", err.Error()),
			)
		}
	}

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, server.Deps{
			Config:   cfg,
			Group:    group,
			Opcodes:  dispatcher.Opcodes(),
			Capture:  mgr,
			APRS:     ingest,
			Recorder: recorder,
			Hub:      hub,
			Metrics:  appMetrics,
			Gatherer: reg,
			Version:  version,
		})
		if err := httpServer.Start(); err != nil {
			return err
		}
	}

	logger.Info("Service started successfully, waiting for signals...")

	<-ctx.Done()
	logger.Info("Starting graceful shutdown...")

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	<-groupDone

	st := group.Stats()
	logger.Info("Final rate group statistics",
		slog.Uint64("cycles", st.Cycles),
		slog.Uint64("overruns", st.Overruns),
		slog.Uint64("commands", st.Commands),
		slog.Uint64("packets_transmitted", mgr.PacketsTransmitted()),
		slog.Uint64("frames_processed", mgr.FramesProcessed()),
	)

	logger.Info("Service stopped")
	return nil
}

func captureConfig(cfg *config.Config) capture.Config {
	c := capture.DefaultConfig()
	c.Candidates = cfg.Capture.Devices
	c.Params = device.Params{
		SampleRate:      float64(cfg.Capture.SampleRate),
		Channels:        cfg.Capture.Channels,
		FramesPerBuffer: cfg.Capture.BufferSamples,
	}
	c.BufferSamples = cfg.Capture.BufferSamples
	c.MaxPayload = cfg.Transmission.MaxPayloadBytes
	c.LevelThreshold = uint8(cfg.Capture.LevelThreshold)
	return c
}

func runMonitor() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, logCloser := logging.New(cfg.Logging)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	mon := server.NewDownlinkMonitor(cfg.Monitor, logger, metrics.NewMetrics(reg))
	if err := mon.Start(); err != nil {
		return err
	}

	if cfg.Monitor.MetricsPort > 0 {
		metricsServer := &http.Server{
			Addr:              cfg.Monitor.GetMetricsAddress(),
			Handler:           mon.Handler(reg),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("Serving monitor metrics", slog.String("address", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Monitor metrics server error", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			metricsServer.Shutdown(shutdownCtx)
		}()
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := mon.Stop(); err != nil {
				return err
			}
			return writeRecording(mon, logger)
		case <-ticker.C:
			st := mon.GetStatistics()
			logger.Info("Downlink statistics",
				slog.Uint64("total_packets", st.TotalPackets),
				slog.Uint64("valid_packets", st.ValidPackets),
				slog.Uint64("sequence_errors", st.SequenceErrors),
				slog.Uint64("expected_sequence", uint64(st.ExpectedSequence)),
				slog.Int("last_level", int(st.LastLevel)),
			)
		}
	}
}

func writeRecording(mon *server.DownlinkMonitor, logger *slog.Logger) error {
	if recordPath == "" {
		return nil
	}

	rec := mon.Recording()
	if rec == nil {
		return fmt.Errorf("--record needs monitor.record_seconds > 0")
	}
	if len(rec.Samples()) == 0 {
		logger.Warn("No downlink audio received, nothing recorded")
		return nil
	}

	wav, err := rec.WAV()
	if err != nil {
		return err
	}
	if err := os.WriteFile(recordPath, wav, 0o644); err != nil {
		return fmt.Errorf("failed to write recording: %w", err)
	}

	st := rec.Stats()
	logger.Info("Downlink recording written",
		slog.String("path", recordPath),
		slog.Duration("duration", rec.Duration()),
		slog.Uint64("lost_packets", st.Lost),
	)
	return nil
}

func listDevices(out io.Writer) error {
	host, err := portaudio.NewBackend(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return err
	}
	defer host.Terminate()

	devices, err := host.Devices()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tHOST API\tINPUTS\tRATE\tDEFAULT")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.0f\t%t\n", d.Name, d.HostAPI, d.MaxInputChannels, d.DefaultSampleRate, d.Default)
	}
	return w.Flush()
}

func sendAPRS(address, message string) error {
	conn, err := net.DialTimeout("tcp", address, 5*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	defer conn.Close()

	if !strings.HasPrefix(message, aprs.DefaultTag) {
		fmt.Fprintf(os.Stderr, "warning: message does not start with %s and will be ignored\n", aprs.DefaultTag)
	}

	_, err = conn.Write([]byte(message))
	return err
}
