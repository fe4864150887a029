// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bureau-foundation/mtxchat/cmd/mtxchat/cli"
	"github.com/bureau-foundation/mtxchat/lib/ref"
	"github.com/bureau-foundation/mtxchat/mtxchat"
)

type listenParams struct {
	RetryInterval time.Duration `flag:"retry-interval" desc:"wait before restarting after a failed cycle (default: sync.retry_interval)"`
	MetricsListen string        `flag:"metrics-listen" desc:"host:port to serve Prometheus /metrics on (default: metrics.listen)"`
	JSON          bool          `flag:"json"           desc:"print one JSON object per message"`
}

func listenCommand(app *App) *cli.Command {
	var params listenParams

	return &cli.Command{
		Name:    "listen",
		Summary: "Follow the room and print new messages",
		Description: `Log in if needed, resolve the room and its filter, and run the sync
loop until interrupted. Each cycle's cursor is saved before the next
cycle starts, so a restart resumes where the last run stopped. Failed
cycles are retried after --retry-interval.`,
		Usage: "mtxchat listen [--retry-interval 30s] [--metrics-listen host:port] [--json]",
		Examples: []cli.Example{
			{
				Description: "Follow the room and expose metrics",
				Command:     "mtxchat listen --metrics-listen 127.0.0.1:9464",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}

			printer := messagePrinter(app.Stdout, params.JSON)
			s, err := app.open("listen", printer)
			if err != nil {
				return err
			}
			defer s.Close()

			retry := params.RetryInterval
			if retry == 0 {
				retry = s.config.SyncRetryInterval()
			}
			if retry < 0 {
				return cli.Validation("--retry-interval must be positive")
			}

			metricsListen := params.MetricsListen
			if metricsListen == "" {
				metricsListen = s.config.Metrics.Listen
			}
			if metricsListen != "" {
				stop, err := serveMetrics(metricsListen, s.registry, s)
				if err != nil {
					return cli.Validation("--metrics-listen: %w", err)
				}
				defer stop()
			}

			if err := ensureLoggedIn(ctx, s.engine); err != nil {
				return classify(err)
			}
			s.logger.Info("listening", "room", s.engine.Status().RoomAlias, "retry_interval", retry)

			err = s.engine.Serve(ctx, retry)
			if ctx.Err() != nil {
				s.logger.Info("listen stopped", "reason", context.Cause(ctx))
				return nil
			}
			return classify(err)
		},
	}
}

// messagePrinter renders sync batches as text lines or JSON objects.
func messagePrinter(w io.Writer, asJSON bool) mtxchat.MessageHandler {
	encoder := json.NewEncoder(w)
	return func(roomID ref.RoomID, messages []mtxchat.Message) {
		for _, message := range messages {
			if asJSON {
				encoder.Encode(struct {
					RoomID ref.RoomID `json:"room_id"`
					mtxchat.Message
				}{roomID, message})
				continue
			}
			fmt.Fprintf(w, "%s %s: %s\n",
				message.Timestamp.Format(time.DateTime), message.Sender, message.Body)
		}
	}
}

// serveMetrics exposes the registry on address until stop is called.
func serveMetrics(address string, registry *prometheus.Registry, s *session) (stop func(), err error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()
	s.logger.Info("serving metrics", "address", listener.Addr().String())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}, nil
}
