package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"solarimager/internal/app"
	"solarimager/internal/config"
	"solarimager/internal/downloader"
	"solarimager/internal/filters"
	"solarimager/internal/logger"
	"solarimager/internal/models"
	"solarimager/internal/solarwind"
	"solarimager/internal/video"
)

// cli carries the lazily built App shared by all subcommands.
type cli struct {
	load func(ctx context.Context) (*app.App, error)
	app  *app.App
}

func defaultLoader(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := logger.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		return nil, err
	}
	return app.New(ctx, cfg)
}

func (c *cli) get(cmd *cobra.Command) (*app.App, error) {
	if c.app != nil {
		return c.app, nil
	}
	a, err := c.load(cmd.Context())
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

// newRootCmd builds the command tree. A nil load reads configuration from
// the environment.
func newRootCmd(load func(ctx context.Context) (*app.App, error)) *cobra.Command {
	if load == nil {
		load = defaultLoader
	}
	c := &cli{load: load}

	root := &cobra.Command{
		Use:           "solarctl",
		Short:         "Download and organize NASA solar imagery",
		SilenceUsage:  true,
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.app != nil {
				return c.app.Close()
			}
			return nil
		},
	}
	root.AddCommand(
		c.downloadCmd(),
		c.videoCmd(),
		c.cleanupCmd(),
		c.datesCmd(),
		c.solarWindCmd(),
		c.monitorCmd(),
		filtersCmd(),
		versionCmd(),
	)
	return root
}

func parseDayFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	d, err := models.ParseDay(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return d, nil
}

func (c *cli) downloadCmd() *cobra.Command {
	var start, end, filter string
	var resolution int
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download one image per day for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.get(cmd)
			if err != nil {
				return err
			}
			s, err := parseDayFlag("start", start)
			if err != nil {
				return err
			}
			if s.IsZero() {
				s = models.TruncateDay(time.Now())
			}
			e, err := parseDayFlag("end", end)
			if err != nil {
				return err
			}
			req := a.DefaultRequest(downloader.Request{Start: s, End: e, Filter: filter, Resolution: resolution})

			out := cmd.OutOrStdout()
			wf := a.NewWorkflow(func(done, total int, msg string) {
				fmt.Fprintf(out, "[%d/%d] %s\n", done, total, msg)
			})
			summary, err := wf.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			printSummary(out, summary)
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first day (YYYY-MM-DD), defaults to today")
	cmd.Flags().StringVar(&end, "end", "", "last day (YYYY-MM-DD), defaults to --start")
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "wavelength filter code")
	cmd.Flags().IntVarP(&resolution, "resolution", "r", 0, "image size: 1024, 2048 or 4096")
	return cmd
}

func printSummary(w io.Writer, s *downloader.Summary) {
	fmt.Fprintf(w, "Downloaded %d, skipped %d, failed %d, deleted %d corrupted (%s)\n",
		s.Downloaded, s.Skipped, s.Failed, s.Deleted, s.Duration.Round(time.Millisecond))
	for _, e := range s.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
	if s.Cancelled {
		fmt.Fprintln(w, "Cancelled")
	}
}

func (c *cli) videoCmd() *cobra.Command {
	var start, end, filter string
	var fps float64
	cmd := &cobra.Command{
		Use:   "video",
		Short: "Assemble stored images into an MP4 time-lapse",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.get(cmd)
			if err != nil {
				return err
			}
			s, err := parseDayFlag("start", start)
			if err != nil {
				return err
			}
			e, err := parseDayFlag("end", end)
			if err != nil {
				return err
			}
			if _, err := exec.LookPath(a.Config.FFmpegPath); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "ffmpeg not found, trying OpenCV.\n%s\n", video.InstallGuidance())
			}
			res, err := a.MakeVideo(cmd.Context(), app.VideoRequest{Start: s, End: e, Filter: filter, FPS: fps})
			if errors.Is(err, video.ErrNoEncoder) {
				fmt.Fprintln(cmd.ErrOrStderr(), video.InstallGuidance())
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %d frames at %.1f fps (%s) with %s\n",
				res.Output, res.Frames, res.FPS, res.Duration, res.Encoder)
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "last day (YYYY-MM-DD), defaults to --start")
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "wavelength filter code")
	cmd.Flags().Float64Var(&fps, "fps", 0, "frames per second")
	cmd.MarkFlagRequired("start")
	return cmd
}

func (c *cli) cleanupCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete corrupted and duplicate images and stale temp videos",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.get(cmd)
			if err != nil {
				return err
			}
			res, err := a.Cleanup(filter)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range res.Corrupted {
				fmt.Fprintf(out, "corrupted: %s\n", p)
			}
			for _, p := range res.Duplicates {
				fmt.Fprintf(out, "duplicate: %s\n", p)
			}
			fmt.Fprintf(out, "Removed %d corrupted, %d duplicates, %d temp directories\n",
				len(res.Corrupted), len(res.Duplicates), res.TempRemoved)
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "limit to one filter")
	return cmd
}

func (c *cli) datesCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "dates",
		Short: "List the days stored for a filter",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.get(cmd)
			if err != nil {
				return err
			}
			if filter == "" {
				filter = a.Config.DefaultFilter
			}
			f, ok := filters.Lookup(filter)
			if !ok {
				return fmt.Errorf("unknown filter %q", filter)
			}
			dates, err := a.Organizer.ListDates(f.Code)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(dates) == 0 {
				fmt.Fprintf(out, "No images stored for %s\n", f.Code)
				return nil
			}
			for _, d := range dates {
				fmt.Fprintln(out, d.Format(models.DateLayout))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "wavelength filter code")
	return cmd
}

func (c *cli) solarWindCmd() *cobra.Command {
	var rng, export string
	var analyses []string
	cmd := &cobra.Command{
		Use:   "solarwind",
		Short: "Fetch NOAA solar wind data and render analysis charts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.get(cmd)
			if err != nil {
				return err
			}
			r, err := solarwind.ParseRange(rng)
			if err != nil {
				return err
			}
			req := app.AnalysisRequest{Range: r}
			for _, name := range analyses {
				t, ok := models.ParseAnalysisType(name)
				if !ok {
					return fmt.Errorf("unknown analysis type %q", name)
				}
				req.Analyses = append(req.Analyses, t)
			}
			if export != "" {
				if _, err := solarwind.FormatFor(export); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			res, ds, err := a.Analyze(cmd.Context(), req, func(msg string) { fmt.Fprintln(out, msg) })
			if err != nil {
				return err
			}
			if res.Conditions != nil {
				fmt.Fprintln(out, res.Conditions.Summary)
				if res.Conditions.Alert != "" {
					fmt.Fprintln(out, res.Conditions.Alert)
				}
			}
			for _, ch := range res.Charts {
				fmt.Fprintf(out, "%s (%s): %s\n", ch.Analysis, ch.Backend, filepath.Join(a.Config.ChartsDir, filepath.Base(ch.URL)))
			}
			for _, e := range res.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", e)
			}
			if export != "" {
				// An explicit path is honored as given.
				if err := solarwind.Export(ds, export); err != nil {
					return err
				}
				fmt.Fprintf(out, "Exported %d samples to %s\n", len(ds.Samples), export)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rng, "range", "24h", "time range: 6h, 12h, 24h, 3d or 7d")
	cmd.Flags().StringSliceVarP(&analyses, "analysis", "a", nil, "analysis types, all when empty")
	cmd.Flags().StringVar(&export, "export", "", "write samples to a .json, .csv, .csv.gz, .csv.zst or .parquet file")
	return cmd
}

func (c *cli) monitorCmd() *cobra.Command {
	var filter string
	var resolution int
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Keep downloading today's image until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.get(cmd)
			if err != nil {
				return err
			}
			req := a.DefaultRequest(downloader.Request{Filter: filter, Resolution: resolution})
			if interval <= 0 {
				interval = a.Config.MonitorInterval
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Monitoring %s every %s, press Ctrl+C to stop\n", req.Filter, interval)
			return a.NewWorkflow(nil).Monitor(cmd.Context(), req.Filter, req.Resolution, interval, func(s *downloader.Summary) {
				printSummary(out, s)
			})
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "wavelength filter code")
	cmd.Flags().IntVarP(&resolution, "resolution", "r", 0, "image size: 1024, 2048 or 4096")
	cmd.Flags().DurationVar(&interval, "interval", 0, "check interval, defaults to MONITOR_INTERVAL")
	return cmd
}

func filtersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "filters",
		Short: "List the available wavelength filters",
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tNAME\tPARTS\tDESCRIPTION")
			for _, f := range filters.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Code, f.Name, strings.Join(f.Parts, "+"), f.Description)
			}
			return tw.Flush()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "solarctl %s\n", config.GetVersion())
		},
	}
}
