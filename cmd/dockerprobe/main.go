// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

// dockerprobe serves Prometheus metrics about the containers, images, and
// volumes of a Docker engine, probing the engine anew on each scrape.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/siemens/dockerprobe"
	"github.com/siemens/dockerprobe/engine"
	"github.com/siemens/dockerprobe/exposition"

	log "github.com/sirupsen/logrus"
)

// DefaultListenAddress is the address the metrics get served on by default.
const DefaultListenAddress = ":9417"

const shutdownTimeout = 5 * time.Second

// Flag names and the environment variables they can also be set from.
const (
	flagVerbose      = "verbose"
	flagImages       = "collect-images"
	flagVolumes      = "collect-volumes"
	flagSocket       = "socket"
	flagListen       = "listen"
	flagWorkers      = "workers"
	flagQueryTimeout = "query-timeout"
)

var envVars = map[string]string{
	flagVerbose:      "VERBOSE",
	flagImages:       "COLLECT_IMAGE_METRICS",
	flagVolumes:      "COLLECT_VOLUME_METRICS",
	flagSocket:       "DOCKER_SOCKET",
	flagListen:       "LISTEN_ADDRESS",
	flagWorkers:      "WORKERS",
	flagQueryTimeout: "QUERY_TIMEOUT",
}

// config is read once at start.
type config struct {
	verbose bool
	images  bool
	volumes bool
	socket  string
	listen  string
	workers int
	timeout time.Duration
}

func main() {
	if err := newRootCmd(viper.New()).Execute(); err != nil {
		log.Fatal(err)
	}
}

// newRootCmd returns the root command, binding its flags and their
// environment variables to the specified viper instance.
func newRootCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "dockerprobe",
		Short:        "Serves Prometheus metrics about a Docker engine's containers, images, and volumes",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if v.GetBool(flagVerbose) {
				log.SetLevel(log.DebugLevel)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFrom(v)
			l, err := net.Listen("tcp", cfg.listen)
			if err != nil {
				return fmt.Errorf("cannot listen on %s: %w", cfg.listen, err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, l)
		},
	}

	flags := cmd.Flags()
	flags.BoolP(flagVerbose, "v", false, "log debug information")
	flags.Bool(flagImages, false, "collect image metrics")
	flags.Bool(flagVolumes, false, "collect volume metrics")
	flags.String(flagSocket, engine.DefaultSocket, "Docker engine API socket path")
	flags.String(flagListen, DefaultListenAddress, "address to serve metrics on")
	flags.Int(flagWorkers, 0, "maximum number of parallel container queries (0 means GOMAXPROCS)")
	flags.Duration(flagQueryTimeout, dockerprobe.DefaultQueryTimeout, "timeout of each individual engine query")
	for flag, env := range envVars {
		_ = v.BindPFlag(flag, flags.Lookup(flag))
		_ = v.BindEnv(flag, env)
	}
	return cmd
}

// configFrom returns the configuration from flags and environment variables,
// where explicitly set flags take precedence.
func configFrom(v *viper.Viper) config {
	return config{
		verbose: v.GetBool(flagVerbose),
		images:  v.GetBool(flagImages),
		volumes: v.GetBool(flagVolumes),
		socket:  v.GetString(flagSocket),
		listen:  v.GetString(flagListen),
		workers: v.GetInt(flagWorkers),
		timeout: v.GetDuration(flagQueryTimeout),
	}
}

// serve metrics on the specified listener until the context gets cancelled.
// serve fails right away if the engine cannot be reached or doesn't speak a
// sufficiently recent API version.
func serve(ctx context.Context, cfg config, l net.Listener) error {
	defer l.Close()
	eng, err := engine.New(cfg.socket)
	if err != nil {
		return err
	}
	defer eng.Close()
	checkctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	err = eng.Check(checkctx)
	cancel()
	if err != nil {
		return fmt.Errorf("cannot use Docker engine at %s: %w", cfg.socket, err)
	}

	prober := dockerprobe.New(eng,
		dockerprobe.WithWorkers(cfg.workers),
		dockerprobe.WithQueryTimeout(cfg.timeout),
		dockerprobe.WithImages(cfg.images),
		dockerprobe.WithVolumes(cfg.volumes))
	srv := &http.Server{
		Handler:           exposition.Handler(prober),
		ReadHeaderTimeout: 10 * time.Second,
	}
	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(l)
	}()
	log.Infof("serving Docker engine metrics at http://%s%s (images: %t, volumes: %t)",
		l.Addr(), exposition.MetricsPath, cfg.images, cfg.volumes)

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownctx); err != nil {
		return err
	}
	if err := <-served; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
