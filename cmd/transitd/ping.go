package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaymesh/transit/internal/config"
	"github.com/relaymesh/transit/pkg/broker"
	"github.com/relaymesh/transit/pkg/localbus"
	"github.com/relaymesh/transit/pkg/packet"
	"github.com/relaymesh/transit/pkg/registry"
	"github.com/relaymesh/transit/pkg/transit"
)

var pingCmd = &cobra.Command{
	Use:   "ping NODE_ID",
	Short: "Ping a peer node and report round-trip time and clock skew",
	Args:  cobra.ExactArgs(1),
	RunE:  runPing,
}

func init() {
	pingCmd.Flags().Duration("timeout", 5*time.Second, "How long to wait for a PONG")
}

func runPing(cmd *cobra.Command, args []string) error {
	target := args[0]
	timeout, _ := cmd.Flags().GetDuration("timeout")

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tr, bus, _, cleanup, err := connectEphemeralNode(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	pongCh := make(chan transit.PongNotice, 1)
	bus.On(localbus.EventNodePong, func(n localbus.Notice) {
		if pong, ok := n.Data.(transit.PongNotice); ok && pong.NodeID == target {
			select {
			case pongCh <- pong:
			default:
			}
		}
	})

	if err := tr.SendPing(target); err != nil {
		return fmt.Errorf("send ping: %w", err)
	}

	select {
	case pong := <-pongCh:
		fmt.Printf("PONG from %s: round-trip=%dms clock-skew=%dms\n", target, pong.ElapsedTime, pong.TimeDiff)
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("ping to %s timed out after %s", target, timeout)
	}
}

// connectEphemeralNode builds a short-lived Transit instance that joins the
// mesh just long enough to run a CLI query, under a derived node id so it
// never collides with the long-running daemon's own identity.
func connectEphemeralNode(cfg *config.Config) (*transit.Transit, *localbus.Bus, *registry.LocalRegistry, func(), error) {
	ser, err := newSerializer(cfg.Transport.Serializer)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	xport, err := newTransporter(cfg.Transport)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	bus := localbus.New()
	bus.Start()

	nodeID := fmt.Sprintf("%s-cli-%d", cfg.Node.ID, time.Now().UnixNano())
	reg := registry.NewLocalRegistry(0)
	tr, err := transit.New(transit.Config{
		NodeID:           nodeID,
		Transporter:      xport,
		Broker:           broker.NewLocalBroker(nodeID, bus),
		Registry:         reg,
		Codec:            packet.NewCodec(ser),
		Bus:              bus,
		ReconnectBackoff: cfg.Transit.ReconnectBackoff,
		HandshakeGrace:   cfg.Transit.HandshakeGrace,
	})
	if err != nil {
		bus.Stop()
		return nil, nil, nil, nil, fmt.Errorf("build transit: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tr.Connect(ctx); err != nil {
		bus.Stop()
		return nil, nil, nil, nil, fmt.Errorf("connect: %w", err)
	}

	cleanup := func() {
		tr.Disconnect()
		bus.Stop()
	}
	return tr, bus, reg, cleanup, nil
}
