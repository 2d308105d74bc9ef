package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mindwtr/mindwtr/internal/daemon"
	"github.com/mindwtr/mindwtr/internal/dashboard"
	"github.com/mindwtr/mindwtr/internal/ui"
)

var daemonFlags struct {
	withDashboard bool
}

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run background sync",
	Long: `Run in the foreground, syncing on a timer and whenever the data
file changes on disk. Stop with Ctrl-C or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		sy, err := newSyncer(cfg, st, nil)
		if err != nil {
			return err
		}

		dcfg := daemon.DefaultConfig()
		if cfg.Daemon.Interval > 0 {
			dcfg.Interval = cfg.Daemon.Interval
		}
		dcfg.LogFile = cfg.Daemon.LogFile

		d, err := daemon.New(st, sy, dcfg)
		if err != nil {
			return err
		}

		if daemonFlags.withDashboard {
			srv := dashboard.NewServer(cfg.DashboardPort, nil)
			if err := srv.Start(); err != nil {
				return err
			}
			defer srv.Stop()
			d.OnStart = func() { srv.PublishStarted(string(cfg.Sync.Backend)) }
			d.OnResult = srv.PublishResult
			fmt.Printf("Dashboard feed on %s\n", ui.Accent("ws://"+srv.Addr()+"/ws"))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Syncing every %s, watching %s\n", dcfg.Interval, ui.Faint(st.Path()))
		return d.Run(ctx)
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonFlags.withDashboard, "dashboard", false,
		"also serve the WebSocket status feed")
	rootCmd.AddCommand(daemonCmd)
}
