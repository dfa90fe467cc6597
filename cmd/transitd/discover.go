package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/relaymesh/transit/internal/config"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Broadcast DISCOVER and print the nodes that reply",
	RunE:  runDiscover,
}

func init() {
	discoverCmd.Flags().Duration("wait", 500*time.Millisecond, "How long to collect INFO replies before printing")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	wait, _ := cmd.Flags().GetDuration("wait")

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tr, _, reg, cleanup, err := connectEphemeralNode(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := tr.DiscoverNodes(); err != nil {
		return fmt.Errorf("discover: %w", err)
	}

	time.Sleep(wait)

	nodes := reg.Nodes()
	if len(nodes) == 0 {
		fmt.Println("no peers replied")
		return nil
	}

	fmt.Printf("%-20s %-10s %s\n", "NODE ID", "AVAILABLE", "SERVICES")
	for _, n := range nodes {
		fmt.Printf("%-20s %-10t %v\n", n.ID, n.Available, n.Services)
	}
	return nil
}
