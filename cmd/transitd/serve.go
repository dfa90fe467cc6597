package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/relaymesh/transit/internal/config"
	"github.com/relaymesh/transit/pkg/broker"
	"github.com/relaymesh/transit/pkg/localbus"
	"github.com/relaymesh/transit/pkg/log"
	"github.com/relaymesh/transit/pkg/metrics"
	"github.com/relaymesh/transit/pkg/packet"
	"github.com/relaymesh/transit/pkg/registry"
	"github.com/relaymesh/transit/pkg/serializer"
	"github.com/relaymesh/transit/pkg/transit"
	"github.com/relaymesh/transit/pkg/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start this node and join the mesh",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address to serve /metrics on")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: cfg.Log.JSONOutput || logJSON,
	})

	logger := log.WithNodeID(cfg.Node.ID)
	logger.Info().Str("transport", cfg.Transport.Kind).Msg("starting transitd")

	ser, err := newSerializer(cfg.Transport.Serializer)
	if err != nil {
		return err
	}

	xport, err := newTransporter(cfg.Transport)
	if err != nil {
		return err
	}

	bus := localbus.New()
	bus.Start()
	defer bus.Stop()

	bus.On(localbus.EventTransporterConnected, func(n localbus.Notice) {
		logger.Info().Msg("transit connected")
	})
	bus.On(localbus.EventTransporterDisconnected, func(n localbus.Notice) {
		logger.Warn().Msg("transit disconnected")
	})

	lb := broker.NewLocalBroker(cfg.Node.ID, bus)
	lb.RegisterAction("transit.echo", func(ctx broker.RequestContext) (any, error) {
		return ctx.Params, nil
	})

	reg := registry.NewLocalRegistry(cfg.Transit.NodeLivenessTimeout)
	reg.OnNodeLost(func(nodeID string) {
		logger.Warn().Str("node_id", nodeID).Msg("peer lost, sweeping its pending requests")
	})
	reg.Start()
	defer reg.Stop()

	metrics.SetVersion(version)
	metrics.RegisterCriticalComponent("registry", true, "sweeping")
	metrics.RegisterCriticalComponent("transporter", false, "connecting")

	tr, err := transit.New(transit.Config{
		NodeID:           cfg.Node.ID,
		Transporter:      xport,
		Broker:           lb,
		Registry:         reg,
		Codec:            packet.NewCodec(ser),
		Bus:              bus,
		MaxQueueSize:     cfg.Transit.MaxQueueSize,
		ReconnectBackoff: cfg.Transit.ReconnectBackoff,
		HandshakeGrace:   cfg.Transit.HandshakeGrace,
		OnDropped:        func(err error) { logDropped(logger, err) },
	})
	if err != nil {
		return fmt.Errorf("build transit: %w", err)
	}

	collector := metrics.NewCollector(tr)
	collector.Start()
	defer collector.Stop()

	metrics.SetStatsSource(tr)
	defer metrics.SetStatsSource(nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tr.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer tr.Disconnect()
	metrics.RegisterCriticalComponent("transporter", true, "connected")

	tr.StartHeartbeatLoop(cfg.Transit.HeartbeatInterval)
	defer tr.StopHeartbeatLoop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	srv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	logger.Info().Str("addr", metricsAddr).Msg("metrics endpoint listening")
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutting down")
	return nil
}

// logDropped turns a dropped-packet error into a structured warning log line,
// discriminating on the typed error kind so an operator can tell a stale peer
// (version mismatch) from a malformed one (missing packet/payload) without
// parsing message text.
func logDropped(logger zerolog.Logger, err error) {
	var versionMismatch *transit.ErrProtocolVersionMismatch
	var missingPacket *transit.ErrMissingPacket
	var missingPayload *transit.ErrMissingPayload

	switch {
	case errors.As(err, &versionMismatch):
		logger.Warn().
			Str("reason", "version_mismatch").
			Str("sender", versionMismatch.Sender).
			Str("observed", versionMismatch.Observed).
			Str("expected", versionMismatch.Expected).
			Msg("dropped packet from peer running an incompatible protocol version")
	case errors.As(err, &missingPacket):
		logger.Warn().
			Str("reason", "missing_packet").
			Str("command", string(missingPacket.Command)).
			Msg("dropped empty packet")
	case errors.As(err, &missingPayload):
		logger.Warn().
			Str("reason", "missing_payload").
			Str("command", string(missingPayload.Command)).
			Msg("dropped packet with no decodable header")
	default:
		logger.Warn().Err(err).Msg("dropped packet during decode")
	}
}

func newSerializer(kind string) (serializer.Serializer, error) {
	switch kind {
	case "", "json":
		return serializer.NewJSON(), nil
	case "msgpack":
		return serializer.NewMsgpack(), nil
	default:
		return nil, fmt.Errorf("unknown serializer %q", kind)
	}
}

func newTransporter(cfg config.TransportConfig) (transport.Transporter, error) {
	switch cfg.Kind {
	case "", "local":
		return transport.NewLocalTransporter(transport.NewLocalHub()), nil
	case "nats":
		return transport.NewNATSTransporter(cfg.URL, cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}
