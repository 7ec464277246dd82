package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/wallnav/internal/db"
)

func newWaypointsCmd(rf *rootFlags) *cobra.Command {
	var (
		runID     string
		listRuns  bool
		runsLimit int
	)
	cmd := &cobra.Command{
		Use:   "waypoints",
		Short: "List waypoints recorded by a run (default: the latest run)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rf.dbPath == "" {
				return errors.New("--db-path is required")
			}
			database, err := db.NewDB(rf.dbPath)
			if err != nil {
				return err
			}
			defer database.Close()

			out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer out.Flush()

			if listRuns {
				runs, err := database.ListRuns(runsLimit)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "RUN\tSTARTED\tFINISHED\tWALL OFFSET\tNOTE")
				for _, r := range runs {
					finished, offset := "-", "-"
					if r.FinishedAt != nil {
						finished = r.FinishedAt.Format(time.RFC3339)
					}
					if r.FinalWallOffset != nil {
						offset = fmt.Sprintf("%.2f", *r.FinalWallOffset)
					}
					fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.StartedAt.Format(time.RFC3339), finished, offset, r.Note)
				}
				return nil
			}

			run, err := selectRun(database, runID)
			if err != nil {
				return err
			}
			waypoints, err := database.ListWaypoints(run.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Run %s started %s: %d waypoint(s)\n", run.ID, run.StartedAt.Format(time.RFC3339), len(waypoints))
			if len(waypoints) == 0 {
				return nil
			}
			fmt.Fprintln(out, "KEY\tX\tY\tRECORDED")
			for _, wp := range waypoints {
				fmt.Fprintf(out, "%d\t%.1f\t%.1f\t%s\n", wp.Key, wp.Position.X, wp.Position.Y, wp.RecordedAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&runID, "run", "", "run ID (default: latest)")
	f.BoolVar(&listRuns, "runs", false, "list runs instead of waypoints")
	f.IntVar(&runsLimit, "limit", 20, "maximum runs listed with --runs")
	return cmd
}

func selectRun(database *db.DB, runID string) (*db.Run, error) {
	if runID != "" {
		return database.GetRun(runID)
	}
	run, err := database.LatestRun()
	if errors.Is(err, db.ErrRunNotFound) {
		return nil, errors.New("no runs recorded yet")
	}
	return run, err
}
