package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/orgadmin/internal/points"
)

// ScheduleOptions holds flags for the schedule command.
type ScheduleOptions struct {
	*RootOptions
	Types []int // distribution types to schedule
	Once  bool  // run due jobs once and exit
}

// JobInfo is the JSON form of a scheduled job.
type JobInfo struct {
	ID             string `json:"id"`
	DistributionID int64  `json:"distribution_id"`
	Next           string `json:"next"`
	Interval       string `json:"interval,omitempty"`
}

// ScheduleResult is the JSON form of a --once run.
type ScheduleResult struct {
	Jobs []JobInfo `json:"jobs"`
	Runs []RunInfo `json:"runs"`
}

// NewScheduleCommand creates the schedule command.
func NewScheduleCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScheduleOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run distributions on their schedule",
		Long: `Schedule the active distribution of each --type and run them at their
start time: temporary distributions once, weekly and biweekly ones every
one or two weeks from then on. Runs until interrupted.

A type with no active distribution is skipped with a warning. Missed
runs are made up once, not once per missed interval.

Examples:
  orgadmin schedule
  orgadmin schedule --type 1
  orgadmin schedule --once --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSchedule(opts, cmd)
		},
	}

	cmd.Flags().IntSliceVarP(&opts.Types, "type", "t",
		[]int{points.Temporary, points.Weekly, points.Biweekly}, "distribution types to schedule")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "run the jobs that are due now and exit")

	return cmd
}

func runSchedule(opts *ScheduleOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := opts.Config()
	if err != nil {
		return formatter.Fail(err)
	}
	s, err := opts.OpenStore()
	if err != nil {
		return formatter.Fail(err)
	}
	defer s.Close()

	logger := slog.Default().With("command", "schedule")
	d := points.NewDistributor(s, cfg.Points.Proposer, points.WithLogger(logger))
	sched := points.NewScheduler(d, points.SystemClock{}, logger)

	ctx := cmd.Context()
	for _, typ := range opts.Types {
		if _, err := parseType(fmt.Sprint(typ)); err != nil {
			return formatter.Fail(err)
		}
		_, err := sched.Register(ctx, s, typ)
		if errors.Is(err, points.ErrNoActiveDistribution) {
			logger.Warn("no active distribution", "type", typ)
			continue
		}
		if err != nil {
			return formatter.Fail(err)
		}
	}

	jobs := sched.Jobs()
	if len(jobs) == 0 {
		return formatter.Fail(fmt.Errorf("%w: types %v", points.ErrNoActiveDistribution, opts.Types))
	}
	infos := make([]JobInfo, len(jobs))
	for i, job := range jobs {
		infos[i] = jobInfo(job)
	}

	if opts.Once {
		results, err := sched.Tick(ctx)
		if err != nil {
			return formatter.Fail(err)
		}
		out := ScheduleResult{Jobs: infos, Runs: make([]RunInfo, len(results))}
		for i, res := range results {
			out.Runs[i] = runInfo(res)
		}
		if formatter.Format == "json" {
			return formatter.Success(out)
		}
		printJobs(formatter, infos)
		fmt.Fprintf(formatter.Writer, "✓ %d runs\n", len(out.Runs))
		return nil
	}

	if formatter.Format != "json" {
		printJobs(formatter, infos)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("scheduler started", "jobs", len(jobs))
	if err := sched.Run(ctx); err != nil {
		return formatter.Fail(err)
	}
	logger.Info("scheduler stopped")
	return nil
}

func jobInfo(job points.Job) JobInfo {
	info := JobInfo{
		ID:             job.ID,
		DistributionID: job.Distribution.ID,
		Next:           job.Next.UTC().Format(time.RFC3339),
	}
	if job.Interval > 0 {
		info.Interval = job.Interval.String()
	}
	return info
}

func printJobs(formatter *OutputFormatter, jobs []JobInfo) {
	rows := make([][]string, len(jobs))
	for i, j := range jobs {
		interval := j.Interval
		if interval == "" {
			interval = "once"
		}
		rows[i] = []string{j.ID, fmt.Sprint(j.DistributionID), j.Next, interval}
	}
	formatter.Table([]string{"JOB", "DISTRIBUTION", "NEXT", "EVERY"}, rows)
}
