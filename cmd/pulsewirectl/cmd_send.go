package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/kuuji/pulsewire/internal/config"
	"github.com/kuuji/pulsewire/internal/engine"
)

var (
	sendURL     string
	sendToken   string
	sendTopic   string
	sendPayload string
	sendLossy   bool
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Join a session, publish one data message, and leave",
	RunE:  runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendURL, "url", "", "signaling server WebSocket URL")
	sendCmd.Flags().StringVar(&sendToken, "token", "", "session join token")
	sendCmd.Flags().StringVar(&sendTopic, "topic", "", "data packet topic")
	sendCmd.Flags().StringVar(&sendPayload, "message", "", "payload to send (prompted for interactively if omitted)")
	sendCmd.Flags().BoolVar(&sendLossy, "lossy", false, "send over the lossy data channel instead of the reliable one")
	sendCmd.Flags().String("socket", "", "debug socket path (default: platform-specific)")
	_ = sendCmd.MarkFlagRequired("url")
	_ = sendCmd.MarkFlagRequired("token")
}

func runSend(cmd *cobra.Command, args []string) error {
	if sendPayload == "" {
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().Title("Topic").Value(&sendTopic),
				huh.NewInput().Title("Message").Value(&sendPayload),
			),
		).WithTheme(promptTheme())
		if err := form.Run(); err != nil {
			return fmt.Errorf("cancelled")
		}
	}

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

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.JoinResponse+cfg.Timeouts.TransportState)
	defer cancel()
	if err := eng.Connect(ctx, sendURL, sendToken, &config.ConnectOptions{}, &cfg.Room); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer eng.Disconnect()

	reliability := engine.Reliable
	if sendLossy {
		reliability = engine.Lossy
	}

	sendCtx, cancelSend := context.WithTimeout(context.Background(), cfg.Timeouts.Publish)
	defer cancelSend()
	if err := eng.Send(sendCtx, []byte(sendPayload), sendTopic, nil, reliability); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	fmt.Println(styleOK.Render("sent"))
	return nil
}
