package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/maauso/slideshow/internal/apperr"
	"github.com/maauso/slideshow/internal/bootstrap"
	"github.com/maauso/slideshow/internal/config"
	"github.com/maauso/slideshow/internal/job"
	"github.com/maauso/slideshow/internal/render"
)

type options struct {
	output        string
	resolution    string
	transition    float64
	silent        bool
	imageDuration float64
	noProgress    bool
	verbose       bool
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "slideshow IMAGE_DIR [AUDIO_FILE]",
		Short: "Render a crossfading slideshow video from a folder of images",
		Long: `Render a slideshow video from a folder of images.

With an audio file the slides share the soundtrack's duration evenly. With
--silent every slide is shown for --image-duration seconds and the video has
no audio track.`,
		Example: `  slideshow images/ podcast.mp3 -o slideshow.mp4
  slideshow photos/ audio.wav -o output.mp4 --resolution 1280x720
  slideshow pics/ sound.m4a -o video.mp4 --transition 1.0
  slideshow images/ --silent -o silent.mp4 --image-duration 5`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(cmd, args, opts, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.StringVarP(&opts.output, "output", "o", render.DefaultOutputPath, "output video file")
	flags.StringVar(&opts.resolution, "resolution", "1920x1080", "output resolution WIDTHxHEIGHT (env OUTPUT_RESOLUTION)")
	flags.Float64Var(&opts.transition, "transition", 0.5, "crossfade duration in seconds (env TRANSITION_SEC)")
	flags.BoolVar(&opts.silent, "silent", false, "render without audio")
	flags.Float64Var(&opts.imageDuration, "image-duration", 3.0, "seconds per image in silent mode (env IMAGE_DURATION_SEC)")
	flags.BoolVar(&opts.noProgress, "no-progress", false, "disable the progress bar")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline stages to stderr")

	return cmd
}

// applyFlags overrides environment configuration with explicitly set flags.
func applyFlags(cmd *cobra.Command, cfg *config.Config, opts options) {
	flags := cmd.Flags()
	if flags.Changed("resolution") {
		cfg.OutputResolution = opts.resolution
	}
	if flags.Changed("transition") {
		cfg.TransitionSec = opts.transition
	}
	if flags.Changed("image-duration") {
		cfg.ImageDurationSec = opts.imageDuration
	}
	if opts.verbose {
		cfg.LogLevel = "debug"
	} else if os.Getenv("LOG_LEVEL") == "" {
		cfg.LogLevel = "warn"
	}
}

func runRender(cmd *cobra.Command, args []string, opts options, stdout, stderr io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyFlags(cmd, cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := cfg.NewLoggerTo(stderr)
	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return err
	}

	params := job.Params{
		ImageDir:   args[0],
		OutputPath: opts.output,
		Silent:     opts.silent,
	}
	if len(args) == 2 {
		params.AudioPath = args[1]
	}
	defaults := deps.Service.Defaults()
	params.Width, params.Height = defaults.Canvas.Width, defaults.Canvas.Height
	params.TransitionSec = defaults.TransitionSec
	params.ImageDurationSec = defaults.ImageDurationSec

	events := render.NewChannelObserver(64)
	submitted, err := deps.Service.Submit(cmd.Context(), params, events)
	if err != nil {
		return err
	}
	logger.Debug("render started", slog.String("job_id", submitted.ID))

	shown := make(chan struct{})
	go func() {
		defer close(shown)
		showProgress(events.Events(), stderr, opts.noProgress)
	}()

	finished := make(chan struct{})
	sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		select {
		case <-sigCtx.Done():
			if err := deps.Service.Cancel(context.Background(), submitted.ID); err != nil {
				logger.Debug("cancel after finish", slog.String("error", err.Error()))
			}
		case <-finished:
		}
	}()

	final, runErr := deps.Service.Wait(context.Background(), submitted.ID)
	close(finished)
	events.Close()
	<-shown

	return report(stdout, stderr, final, runErr)
}

// report prints the outcome of a finished render and returns runErr.
func report(stdout, stderr io.Writer, final *job.Job, runErr error) error {
	switch {
	case runErr == nil:
		fmt.Fprintf(stdout, "%s\nSlideshow video saved to: %s\n", final.Message, final.OutputPath)
	case apperr.IsCancelled(runErr) && final != nil:
		fmt.Fprintln(stderr, final.Message)
	}
	return runErr
}

// showProgress renders events as a terminal progress bar until the channel closes.
func showProgress(events <-chan render.Event, w io.Writer, disabled bool) {
	if disabled {
		for range events {
		}
		return
	}

	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Starting"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetRenderBlankState(true),
	)
	for e := range events {
		bar.Describe(e.Message)
		_ = bar.Set(e.Percent)
	}
	fmt.Fprintln(w)
}
