package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mindwtr/mindwtr/internal/dashboard"
	"github.com/mindwtr/mindwtr/internal/ui"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "sync",
	Short:   "Serve the WebSocket status feed without syncing",
	Long: `Serve only the live status feed, for wiring a client UI while the
daemon runs elsewhere. Usually you want "mw daemon --dashboard" instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		srv := dashboard.NewServer(cfg.DashboardPort, nil)
		if err := srv.Start(); err != nil {
			return err
		}
		fmt.Printf("Dashboard feed on %s\n", ui.Accent("ws://"+srv.Addr()+"/ws"))

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
		return srv.Stop()
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
