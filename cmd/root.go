package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "radio-sim",
	Short: "radio-sim simulates a two-node wireless sensor exchange for learning purposes",
}

func Execute() error {
	return rootCmd.Execute()
}

func contextWithCancelOnInterrupt(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// listenMetrics serves prometheus metrics on the given endpoint
// until ctx is done. A no-op for the empty endpoint.
func listenMetrics(ctx context.Context, endpoint string) {
	if endpoint == "" {
		return
	}
	server := &http.Server{Addr: endpoint, Handler: promhttp.Handler()}
	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()
	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.
				WithError(err).
				WithField("metrics_endpoint", endpoint).
				Error("error serving metrics")
		}
	}()
}
