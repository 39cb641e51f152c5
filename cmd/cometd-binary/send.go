package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/joejackson1993/cometd"
	"github.com/joejackson1993/cometd/ext/binary"
	"github.com/joejackson1993/cometd/ext/timestamp"
)

const sendTimeout = time.Minute

// codecFlags override the COMETD_BINARY_* settings of the binary extension.
type codecFlags struct {
	chunkSize   int
	encoding    string
	compression string
}

func (f *codecFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.chunkSize, "chunk-size", binary.DefaultChunkSize, "encoded size above which payloads are chunked")
	cmd.Flags().StringVar(&f.encoding, "encoding", binary.EncodingZ85, "payload encoding: z85, base64 or base58")
	cmd.Flags().StringVar(&f.compression, "compression", "", "payload compression: snappy or empty")
}

func (f *codecFlags) options(cmd *cobra.Command) ([]binary.Option, error) {
	cfg, err := binary.LoadConfig()
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("chunk-size") {
		cfg.ChunkSize = f.chunkSize
	}
	if cmd.Flags().Changed("encoding") {
		cfg.Encoding = f.encoding
	}
	if cmd.Flags().Changed("compression") {
		cfg.Compression = f.compression
	}
	return cfg.Options(), nil
}

func newSendCmd(a *app) *cobra.Command {
	var (
		peer    peerFlags
		codec   codecFlags
		channel string
		file    string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Publish a file as a binary payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return errors.Wrap(err, "read payload")
			}
			opts, err := codec.options(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, sendTimeout)
			defer cancel()

			t, err := peer.dial(ctx, a.config)
			if err != nil {
				return err
			}

			payload := &binary.BinaryData{
				Data: data,
				Meta: map[string]any{"name": filepath.Base(file), "size": len(data)},
			}
			return sendPayload(ctx, a, t, channel, payload, opts)
		},
	}

	peer.register(cmd)
	codec.register(cmd)
	cmd.Flags().StringVar(&channel, "channel", "/binary", "channel to publish on")
	cmd.Flags().StringVar(&file, "file", "", "file to send")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func sendPayload(ctx context.Context, a *app, t cometd.Transport, channel string, payload *binary.BinaryData, opts []binary.Option) error {
	client, err := cometd.NewClient(t, append(a.config.Options(),
		cometd.LoggerOption(a.logger),
		cometd.OnMessageOption(func(*cometd.Message) error { return nil }),
	)...)
	if err != nil {
		return err
	}
	if _, err = timestamp.Register(client); err != nil {
		return err
	}
	if _, err = binary.Register(client, opts...); err != nil {
		return err
	}

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()
	done := make(chan error, 1)
	go func() { done <- client.Run(runCtx) }()

	if err = client.Publish(ctx, channel, payload); err != nil {
		_ = client.Close()
		return err
	}
	if err = client.Flush(ctx); err != nil {
		_ = client.Close()
		return err
	}
	a.logger.Info("payload sent", "channel", channel, "bytes", len(payload.Data))

	stopRun()
	if err = <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
