package main

import (
	"context"
	"flag"
	"image"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/LdDl/spindle-track/internal/config"
	"github.com/LdDl/spindle-track/internal/logging"
	"github.com/LdDl/spindle-track/internal/report"
	"github.com/LdDl/spindle-track/internal/store"
	"github.com/LdDl/spindle-track/internal/tiffio"
	"github.com/LdDl/spindle-track/spindle"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Delay between overlay frames in the GIF stack, 100ths of a second
const overlayDelay = 50

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		logging.Get().Error().Err(err).Msg("tracking failed")
		os.Exit(1)
	}
}

// parseConfig builds configuration from optional YAML file and command-line flags.
// Flags given explicitly override values from the file.
func parseConfig(args []string, output io.Writer) (*config.Config, error) {
	fs := flag.NewFlagSet("spindle-track", flag.ContinueOnError)
	fs.SetOutput(output)
	defaults := config.Default()

	configPath := fs.String("config", "", "Path to YAML configuration file")
	input := fs.String("input", defaults.Input, "Directory with t{T}_z{Z}_c{C}.tif planes (split multi-page stacks into planes first, e.g. Fiji Stack to Images)")
	outputDir := fs.String("output", defaults.Output, "Directory for tables, overlays and plots")
	timeStart := fs.Int("time-start", defaults.TimeStart, "First frame to process (zero-based)")
	frames := fs.Int("frames", defaults.FrameCount, "Number of frames to process")
	spindleChannel := fs.Int("spindle-channel", defaults.SpindleChannel, "Channel with spindles (zero-based)")
	cellChannel := fs.Int("cell-channel", defaults.CellChannel, "Channel with cell cortex (zero-based)")
	padding := fs.Int("padding", defaults.Padding, "Pixels added on every side of the squared box")
	algorithm := fs.String("algorithm", defaults.Matcher.Algorithm, "Assignment algorithm: hungarian or greedy")
	maxDistance := fs.Float64("max-distance", defaults.Matcher.MaxDistance, "Distance gate for matched pairs in pixels, 0 disables it")
	database := fs.String("db", defaults.Database, "Optional SQLite file to store the run in")
	logLevel := fs.String("log-level", defaults.Log.Level, "Log level: trace, debug, info, warn, error")
	logFormat := fs.String("log-format", defaults.Log.Format, "Log format: console or json")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := defaults
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.Input = *input
		case "output":
			cfg.Output = *outputDir
		case "time-start":
			cfg.TimeStart = *timeStart
		case "frames":
			cfg.FrameCount = *frames
		case "spindle-channel":
			cfg.SpindleChannel = *spindleChannel
		case "cell-channel":
			cfg.CellChannel = *cellChannel
		case "padding":
			cfg.Padding = *padding
		case "algorithm":
			cfg.Matcher.Algorithm = *algorithm
		case "max-distance":
			cfg.Matcher.MaxDistance = *maxDistance
		case "db":
			cfg.Database = *database
		case "log-level":
			cfg.Log.Level = *logLevel
		case "log-format":
			cfg.Log.Format = *logFormat
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlayStack collects rendered frames of one channel
type overlayStack struct {
	images  []*image.RGBA
	indices []int
}

func (s *overlayStack) add(img *image.RGBA, frameIndex int) {
	s.images = append(s.images, img)
	s.indices = append(s.indices, frameIndex)
}

func run(ctx context.Context, args []string, output io.Writer) error {
	cfg, err := parseConfig(args, output)
	if err != nil {
		return err
	}

	logging.Init(logging.Options{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Component: "spindle-track",
		Writer:    output,
	})
	log := logging.Named("cli")

	started := time.Now()
	vol, err := tiffio.LoadVolume(cfg.Input)
	if err != nil {
		return errors.Wrap(err, "can't load volume")
	}
	log.Info().Str("input", cfg.Input).Str("shape", vol.ShapeString()).Msg("volume loaded")

	opts, err := cfg.PipelineOptions(logging.Named("pipeline"))
	if err != nil {
		return err
	}
	pipeline, err := spindle.NewPipeline(opts)
	if err != nil {
		return errors.Wrap(err, "can't create pipeline")
	}
	if err := pipeline.CheckVolume(vol, cfg.TimeStart, cfg.FrameCount); err != nil {
		return errors.Wrap(err, "volume doesn't fit configuration")
	}

	tc := spindle.NewTrackingContext()
	style := report.DefaultOverlayStyle()
	spindleStack := &overlayStack{}
	cellStack := &overlayStack{}
	handler := func(result *spindle.FrameResult) error {
		if !cfg.Outputs.Overlays {
			return nil
		}
		spindleStack.add(report.RenderOverlay(result.Spindle, result.Frame, style), result.Frame.Index)
		cellStack.add(report.RenderOverlay(result.Cell, result.Frame, style), result.Frame.Index)
		return nil
	}
	if err := pipeline.Run(ctx, tc, vol, cfg.TimeStart, cfg.FrameCount, handler); err != nil {
		return errors.Wrap(err, "tracking run failed")
	}
	finished := time.Now()

	if err := writeArtifacts(cfg, tc, vol, spindleStack, cellStack, log); err != nil {
		return err
	}

	if cfg.Database != "" {
		if err := saveRun(ctx, cfg, tc, finished); err != nil {
			return err
		}
	}

	log.Info().
		Str("run_id", tc.RunID().String()).
		Int("tracks", tc.LastIdentity()).
		Int("instances", tc.Ledger().Len()).
		Int("ambiguities", tc.Ambiguities()).
		Dur("elapsed", time.Since(started)).
		Msg("tracking done")
	return nil
}

func writeArtifacts(cfg *config.Config, tc *spindle.TrackingContext, vol *spindle.Volume, spindleStack, cellStack *overlayStack, log zerolog.Logger) error {
	if err := os.MkdirAll(cfg.Output, 0o755); err != nil {
		return errors.Wrapf(err, "can't create output directory %s", cfg.Output)
	}
	lastFrame := cfg.TimeStart + cfg.FrameCount - 1
	base := report.BaseName(report.SpindlePrefix, cfg.TimeStart, lastFrame)
	ledger := tc.Ledger()

	csvPath := filepath.Join(cfg.Output, base+".csv")
	if err := report.SaveInstancesCSV(csvPath, ledger); err != nil {
		return err
	}
	log.Info().Str("path", csvPath).Msg("instance table written")

	if cfg.Outputs.Overlays {
		if err := tiffio.WriteOverlayStack(cfg.Output, base, spindleStack.images, spindleStack.indices, overlayDelay); err != nil {
			return errors.Wrap(err, "can't write spindle overlays")
		}
		cellBase := report.BaseName(report.CellPrefix, cfg.TimeStart, lastFrame)
		if err := tiffio.WriteOverlayStack(cfg.Output, cellBase, cellStack.images, cellStack.indices, overlayDelay); err != nil {
			return errors.Wrap(err, "can't write cell overlays")
		}
		log.Info().Int("frames", len(spindleStack.images)).Msg("overlays written")
	}

	if !cfg.Outputs.TrackSummary && !cfg.Outputs.Trajectories {
		return nil
	}
	kinematics, err := spindle.LedgerKinematics(ledger)
	if err != nil {
		return errors.Wrap(err, "can't compute track kinematics")
	}
	if cfg.Outputs.TrackSummary {
		path := filepath.Join(cfg.Output, base+"_tracks.csv")
		if err := report.SaveTrackSummaryCSV(path, ledger, kinematics); err != nil {
			return err
		}
	}
	if cfg.Outputs.Trajectories {
		path := filepath.Join(cfg.Output, base+"_trajectories.png")
		if err := report.SaveTrajectoryPlot(path, ledger.Tracks(), kinematics, vol.Rows, vol.Cols); err != nil {
			return err
		}
	}
	return nil
}

func saveRun(ctx context.Context, cfg *config.Config, tc *spindle.TrackingContext, finished time.Time) error {
	st, err := store.Open(cfg.Database, logging.Named("store"))
	if err != nil {
		return errors.Wrap(err, "can't open run database")
	}
	defer st.Close()
	info := store.RunInfo{
		ID:             tc.RunID(),
		StartedAt:      tc.StartedAt(),
		FinishedAt:     finished,
		Input:          cfg.Input,
		TimeStart:      cfg.TimeStart,
		FrameCount:     cfg.FrameCount,
		SpindleChannel: cfg.SpindleChannel,
		CellChannel:    cfg.CellChannel,
		Padding:        cfg.Padding,
		Algorithm:      cfg.Matcher.Algorithm,
		LastIdentity:   tc.LastIdentity(),
		Ambiguities:    tc.Ambiguities(),
	}
	if err := st.SaveRun(ctx, info, tc.Ledger()); err != nil {
		return errors.Wrap(err, "can't save run")
	}
	return nil
}
