package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joejackson1993/cometd"
	"github.com/joejackson1993/cometd/transport/ws"
)

const shutdownTimeout = 5 * time.Second

func newRelayCmd(a *app) *cobra.Command {
	var tcpAddr, httpAddr string

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run a relay broadcasting every message to every other peer",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runRelay(ctx, a, tcpAddr, httpAddr)
		},
	}
	cmd.Flags().StringVar(&tcpAddr, "tcp", ":7070", "TCP listen address, empty to disable")
	cmd.Flags().StringVar(&httpAddr, "http", ":8080", "HTTP listen address for /cometd, /metrics and /healthz, empty to disable")
	return cmd
}

func runRelay(ctx context.Context, a *app, tcpAddr, httpAddr string) error {
	if tcpAddr == "" && httpAddr == "" {
		return errors.New("nothing to serve: both --tcp and --http are empty")
	}

	hub := cometd.NewHub(a.logger, a.config.TCPOptions()...)
	group, ctx := errgroup.WithContext(ctx)

	if tcpAddr != "" {
		addr, err := net.ResolveTCPAddr("tcp", tcpAddr)
		if err != nil {
			return err
		}
		server, err := cometd.NewServer(addr,
			cometd.ServerLoggerOption(a.logger),
			cometd.ServerShutdownTimeoutOption(shutdownTimeout),
		)
		if err != nil {
			return err
		}
		group.Go(func() error {
			err := server.Serve(ctx, hub)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if httpAddr != "" {
		srv := &http.Server{
			Addr:              httpAddr,
			Handler:           newRelayRouter(hub, a.logger, int64(a.config.MaxFrameSize)),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}
		group.Go(func() error {
			a.logger.Info("http server started", "addr", httpAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return group.Wait()
}

func newRelayRouter(hub *cometd.Hub, logger cometd.Logger, readLimit int64) http.Handler {
	gin.SetMode(gin.ReleaseMode)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "cometd",
			Subsystem: "relay",
			Name:      "peers",
			Help:      "Peers attached to the relay",
		}, func() float64 {
			return float64(hub.Peers())
		}),
	)

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/cometd", gin.WrapH(ws.NewRelay(hub, logger, ws.ReadLimitOption(readLimit))))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "peers": hub.Peers()})
	})
	return router
}
