package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	evbus "github.com/asaskevich/EventBus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/joejackson1993/cometd"
	"github.com/joejackson1993/cometd/ext/binary"
	"github.com/joejackson1993/cometd/ext/timestamp"
	"github.com/joejackson1993/cometd/metrics"
)

func newRecvCmd(a *app) *cobra.Command {
	var (
		peer        peerFlags
		channel     string
		out         string
		count       int
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "recv",
		Short: "Write received binary payloads to a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(out, 0o755); err != nil {
				return err
			}
			cfg, err := binary.LoadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			t, err := peer.dial(ctx, a.config)
			if err != nil {
				return err
			}

			r := &receiver{app: a, channel: channel, dir: out, limit: int64(count)}
			return r.run(ctx, t, cfg.Options(), metricsAddr)
		},
	}

	peer.register(cmd)
	cmd.Flags().StringVar(&channel, "channel", "/binary", "channel to receive from")
	cmd.Flags().StringVar(&out, "out", ".", "directory receiving the payloads")
	cmd.Flags().IntVar(&count, "count", 0, "exit after this many payloads, 0 to run until interrupted")
	cmd.Flags().StringVar(&metricsAddr, "metrics", "", "serve Prometheus metrics on this address")
	return cmd
}

type receiver struct {
	app     *app
	channel string
	dir     string
	limit   int64

	received atomic.Int64
	cancel   context.CancelFunc
}

func (r *receiver) run(ctx context.Context, t cometd.Transport, opts []binary.Option, metricsAddr string) error {
	logger := r.app.logger

	bus := evbus.New()
	if err := bus.Subscribe(cometd.FailureTopic, func(f cometd.Failure) {
		logger.Warn("payload lost", "kind", f.Kind, "channel", f.Channel, "id", f.MessageID, "error", f.Err)
	}); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	client, err := cometd.NewClient(t, append(r.app.config.Options(),
		cometd.LoggerOption(logger),
		cometd.ReporterOption(cometd.MultiReporter(cometd.BusReporter(bus, ""), collector)),
		cometd.OnMessageOption(r.handle),
	)...)
	if err != nil {
		return err
	}

	if _, err = timestamp.Register(client); err != nil {
		return err
	}
	codec, err := binary.Register(client, opts...)
	if err != nil {
		return err
	}
	if err = client.RegisterExtension(metrics.ExtensionName, collector.Extension()); err != nil {
		return err
	}
	if err = collector.TrackPending(codec.Pending); err != nil {
		return err
	}

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	ctx, r.cancel = context.WithCancel(ctx)
	defer r.cancel()

	logger.Info("waiting for payloads", "channel", r.channel, "dir", r.dir)
	err = client.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (r *receiver) handle(msg *cometd.Message) error {
	logger := r.app.logger
	if msg.Channel != r.channel {
		logger.Debug("ignoring message", "channel", msg.Channel, "id", msg.ID)
		return nil
	}

	bin, ok := binary.FromMessageData(msg.Data)
	if !ok {
		logger.Info("message", "channel", msg.Channel, "id", msg.ID, "data", msg.Data)
		return nil
	}

	path := filepath.Join(r.dir, payloadName(msg.ID, bin.Meta))
	if err := os.WriteFile(path, bin.Data, 0o644); err != nil {
		return err
	}

	args := []any{"channel", msg.Channel, "id", msg.ID, "bytes", len(bin.Data), "path", path}
	if sent, ok := timestamp.Timestamp(msg); ok {
		args = append(args, "latency", time.Since(sent).Round(time.Millisecond))
	}
	logger.Info("payload received", args...)

	if n := r.received.Add(1); r.limit > 0 && n >= r.limit {
		r.cancel()
	}
	return nil
}

// payloadName derives a file name from the sender's metadata, falling back
// to the message id.
func payloadName(id string, meta map[string]any) string {
	if name, ok := meta["name"].(string); ok {
		name = filepath.Base(filepath.Clean(name))
		if name != "." && name != "/" && name != ".." {
			return id + "-" + name
		}
	}
	return id + ".bin"
}
