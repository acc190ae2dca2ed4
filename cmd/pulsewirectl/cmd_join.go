package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	sp "github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/kuuji/pulsewire/internal/config"
)

var (
	joinURL       string
	joinToken     string
	joinForceTURN bool
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a session and stay connected until interrupted",
	Long: `join connects the session engine to a signaling server, waits for
the session to reach Connected, and then blocks, printing connection state
transitions, until interrupted with Ctrl-C.`,
	RunE: runJoin,
}

func init() {
	joinCmd.Flags().StringVar(&joinURL, "url", "", "signaling server WebSocket URL")
	joinCmd.Flags().StringVar(&joinToken, "token", "", "session join token")
	joinCmd.Flags().BoolVar(&joinForceTURN, "force-relay", false, "restrict ICE gathering to relay candidates")
	joinCmd.Flags().String("socket", "", "debug socket path (default: platform-specific)")
	_ = joinCmd.MarkFlagRequired("url")
	_ = joinCmd.MarkFlagRequired("token")
}

func runJoin(cmd *cobra.Command, args []string) error {
	cfg, err := loadEngineConfig()
	if err != nil {
		return err
	}

	eng, _, srv := newSession(socketPathFlag(cmd))
	defer eng.Close()

	if err := srv.Start(); err != nil {
		return fmt.Errorf("starting debug server: %w", err)
	}
	defer srv.Stop()

	spinner := sp.New(sp.CharSets[11], 100*time.Millisecond)
	spinner.Suffix = " connecting to " + joinURL
	spinner.HideCursor = true
	spinner.Start()

	connect := &config.ConnectOptions{ForceRelay: joinForceTURN}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.JoinResponse+cfg.Timeouts.TransportState)
	err = eng.Connect(ctx, joinURL, joinToken, connect, &cfg.Room)
	cancel()
	spinner.Stop()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	fmt.Println(styleHeader.Render("connected") + " — press Ctrl-C to leave")

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	fmt.Println("leaving...")
	eng.Disconnect()
	return nil
}
