package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jacoelho/ringchan"
	"github.com/jacoelho/ringchan/internal/config"
)

type flags struct {
	cfgFile      string
	capacity     string
	chunk        string
	stallTimeout time.Duration
	partial      bool
	progress     time.Duration
	stats        bool
	verbose      bool
}

// NewCommand returns the ringcat root command reading from in and writing to
// out and errOut.
func NewCommand(in io.Reader, out, errOut io.Writer) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "ringcat",
		Short: "Copy stdin to stdout through a bounded ring channel",
		Long: `ringcat pumps stdin into a fixed-size ring channel from one goroutine
and drains it to stdout from another. It is handy for exercising the
channel's blocking and close behaviour against real streams.

Examples:
  # 1 KiB channel, report stats when done
  ringcat --capacity 1KiB --stats < input > output

  # Settings from a file, flags still win
  ringcat --config ringcat.yaml --chunk 512
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Flags(), f)
			if err != nil {
				return err
			}
			logger, err := newLogger(f.verbose)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			stats, err := run(cmd.Context(), cfg, logger, in, out, errOut, f.progress)
			if f.stats {
				fmt.Fprintf(errOut, "channel %s: %d bytes in, %d bytes out, capacity %s\n",
					stats.Name, stats.BytesWritten, stats.BytesRead, config.Size(stats.Capacity))
			}
			return err
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.cfgFile, "config", "", "YAML config file")
	fs.StringVar(&f.capacity, "capacity", "64KiB", "channel capacity")
	fs.StringVar(&f.chunk, "chunk", "4KiB", "read and write chunk size")
	fs.DurationVar(&f.stallTimeout, "stall-timeout", ringchan.DefaultStallTimeout, "give up on a full channel after this long without reads (0 disables)")
	fs.BoolVar(&f.partial, "partial", true, "return partial reads instead of waiting for a full chunk")
	fs.BoolVar(&f.stats, "stats", false, "print channel statistics to stderr")
	fs.DurationVar(&f.progress, "progress", 0, "print byte counts to stderr at this interval (0 disables)")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	return cmd
}

// Execute runs ringcat against the process stdio.
func Execute() error {
	return NewCommand(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(context.Background())
}

// resolveConfig layers explicitly set flags over the config file over the
// defaults.
func resolveConfig(fs *pflag.FlagSet, f flags) (config.Config, error) {
	cfg := config.Default()
	if f.cfgFile != "" {
		loaded, err := config.Load(f.cfgFile)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	var err error
	fs.Visit(func(fl *pflag.Flag) {
		if err != nil {
			return
		}
		switch fl.Name {
		case "capacity":
			cfg.Capacity, err = config.ParseSize(f.capacity)
		case "chunk":
			cfg.Chunk, err = config.ParseSize(f.chunk)
		case "stall-timeout":
			cfg.StallTimeout = f.stallTimeout
		case "partial":
			cfg.PartialReads = f.partial
		}
	})
	if err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

// run pumps in through a channel to out. The producer is not waited for
// once the consumer fails: a read from stdin cannot be interrupted, so it is
// left to exit on its own when that read returns and its write hits the
// closed channel.
func run(ctx context.Context, cfg config.Config, logger *zap.Logger, in io.Reader, out, errOut io.Writer, progress time.Duration) (ringchan.Stats, error) {
	opts := append(cfg.Options(), ringchan.WithLogger(logger.Named("ringcat")))
	ch, err := ringchan.New(int(cfg.Capacity), opts...)
	if err != nil {
		return ringchan.Stats{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	src := ringchan.NewSource(ch).WithContext(ctx)
	sink := ringchan.NewSink(ch).WithContext(ctx)

	produced := make(chan error, 1)
	go func() {
		defer sink.Close()
		_, err := ringchan.Copy(sink, in, int(cfg.Chunk))
		produced <- err
	}()

	var g errgroup.Group
	drained := make(chan struct{})
	if progress > 0 {
		g.Go(func() error {
			reportProgress(drained, ch, progress, errOut)
			return nil
		})
	}
	g.Go(func() error {
		defer close(drained)
		_, err := ringchan.Copy(out, src, int(cfg.Chunk))
		return err
	})

	if err = g.Wait(); err != nil {
		_ = src.Close()
		logger.Debug("output failed, abandoning input",
			zap.String("channel", ch.Name()),
			zap.Error(err),
		)
	} else {
		// EOF on the source means the producer closed the sink.
		err = <-produced
	}

	stats := ch.Stats()
	logger.Debug("ringcat finished",
		zap.String("channel", stats.Name),
		zap.Int64("bytes_written", stats.BytesWritten),
		zap.Int64("bytes_read", stats.BytesRead),
	)
	return stats, err
}

// reportProgress prints the channel byte counters every interval until stop
// is closed.
func reportProgress(stop <-chan struct{}, ch *ringchan.Channel, every time.Duration, w io.Writer) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			fmt.Fprintf(w, "channel %s: %d bytes in, %d bytes out\n", ch.Name(), ch.BytesWritten(), ch.BytesRead())
		}
	}
}
