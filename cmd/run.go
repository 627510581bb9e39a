package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/specdecode/eagleworker/eagle"
	"github.com/specdecode/eagleworker/eagle/kv"
	"github.com/specdecode/eagleworker/eagle/runtime"
	"github.com/specdecode/eagleworker/eagle/trace"
)

var (
	configPath  string
	numRequests int
	numStepsRun int
	kvCapacity  int64
	runSeed     int64
	logLevel    string
	traceLevel  string
	metricsAddr string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a synthetic draft/verify benchmark against the reference runtime",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		log := logrus.New()
		log.SetLevel(level)

		cfg, err := eagle.LoadSpeculativeConfig(configPath)
		if err != nil {
			return err
		}
		if !trace.IsValidLevel(traceLevel) {
			return fmt.Errorf("invalid trace level %q", traceLevel)
		}

		registry := prometheus.NewRegistry()
		if metricsAddr != "" {
			go func() {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
				srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
				log.WithField("addr", metricsAddr).Info("metrics http listener starting")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.WithError(err).Warn("metrics http listener stopped")
				}
			}()
		}

		allocator := kv.NewAllocator(kvCapacity)
		table := kv.NewTable()
		rng := eagle.NewPartitionedRNG(eagle.NewSimulationKey(runSeed))
		refCfg := runtime.ReferenceConfig{VocabSize: cfg.VocabSize, HiddenSize: 64}

		var hotToken *eagle.HotTokenMap
		if cfg.TokenMapPath != "" && cfg.Algorithm != eagle.AlgorithmEAGLE3 {
			hotToken, err = eagle.LoadHotTokenMap(cfg.TokenMapPath)
			if err != nil {
				return err
			}
		}

		worker := &eagle.Worker{
			Config:    *cfg,
			Draft:     &runtime.ReferenceDraftRunner{Config: refCfg, RNG: rng},
			Target:    &runtime.ReferenceTargetRunner{Config: refCfg, RNG: rng, AcceptanceBias: 2.0},
			Allocator: allocator,
			ReqTable:  table,
			RNG:       rng,
			HotToken:  hotToken,
			Log:       log,
			Trace:     trace.NewRun(trace.Config{Level: trace.Level(traceLevel)}),
		}

		metrics, err := eagle.NewMetrics(registry)
		if err != nil {
			return err
		}
		worker.Metrics = metrics

		reqs := make([]*eagle.Request, numRequests)
		for i := range reqs {
			reqs[i] = &eagle.Request{
				ID:          fmt.Sprintf("req-%d", i),
				PoolIndex:   i,
				SeqLen:      0,
				Temperature: 1.0,
				Seed:        runSeed + int64(i),
				IsExtend:    true,
			}
		}
		batch := eagle.NewBatch("bench", reqs)

		colorize := isatty.IsTerminal(os.Stdout.Fd())
		bar := progressbar.Default(int64(numStepsRun))

		ctx := context.Background()
		if _, err := worker.Forward(ctx, batch); err != nil {
			return fmt.Errorf("extend step: %w", err)
		}
		_ = bar.Add(1)

		for step := 0; step < numStepsRun; step++ {
			if _, err := worker.Forward(ctx, batch); err != nil {
				return fmt.Errorf("decode step %d: %w", step, err)
			}
			_ = bar.Add(1)
		}

		summary := trace.Summarize(worker.Trace)
		if colorize {
			color.Green("run complete: %d steps traced, mean accept length %.2f", summary.TotalSteps, summary.MeanAcceptLen)
		} else {
			fmt.Printf("run complete: %d steps traced, mean accept length %.2f\n", summary.TotalSteps, summary.MeanAcceptLen)
		}
		metrics.Print()
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "path to speculative config YAML (required)")
	runCmd.Flags().IntVar(&numRequests, "requests", 4, "number of synthetic requests in the batch")
	runCmd.Flags().IntVar(&numStepsRun, "steps", 20, "number of decode iterations to run")
	runCmd.Flags().Int64Var(&kvCapacity, "kv-capacity", 4096, "total KV cache slot capacity")
	runCmd.Flags().Int64Var(&runSeed, "seed", 1, "master simulation seed")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&traceLevel, "trace", string(trace.LevelSteps), "decision trace level (none, steps, full)")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "address to expose Prometheus /metrics on (empty disables)")
	_ = runCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(runCmd)
}
