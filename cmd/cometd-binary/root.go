package main

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/joejackson1993/cometd"
	"github.com/joejackson1993/cometd/transport/ws"
)

// app carries the state shared by subcommands.
type app struct {
	logLevel  string
	logFormat string

	logger cometd.Logger
	sync   func()
	config cometd.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "cometd-binary",
		Short:         "Exchange binary payloads over a cometd relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, sync, err := newLogger(a.logLevel, a.logFormat, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a.logger, a.sync = logger, sync

			a.config, err = cometd.LoadConfig()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.sync != nil {
				a.sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", envOr("COMETD_LOG_LEVEL", "info"), "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&a.logFormat, "log-format", envOr("COMETD_LOG_FORMAT", "text"), "log format: text or json")

	cmd.AddCommand(newRelayCmd(a), newSendCmd(a), newRecvCmd(a))
	return cmd
}

// peerFlags selects the relay a client connects to.
type peerFlags struct {
	addr string
	url  string
}

func (p *peerFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.addr, "addr", "", "relay TCP address, e.g. localhost:7070")
	cmd.Flags().StringVar(&p.url, "url", "", "relay WebSocket URL, e.g. ws://localhost:8080/cometd")
}

func (p *peerFlags) dial(ctx context.Context, cfg cometd.Config) (cometd.Transport, error) {
	switch {
	case p.addr != "" && p.url != "":
		return nil, errors.New("--addr and --url are mutually exclusive")
	case p.addr != "":
		return cometd.DialTCP(ctx, p.addr, cfg.TCPOptions()...)
	case p.url != "":
		return ws.Dial(ctx, p.url, ws.ReadLimitOption(int64(cfg.MaxFrameSize)))
	default:
		return nil, errors.New("one of --addr or --url is required")
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
