package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"studybuddy-client/internal/app"
)

// NewPlanCmd prints one week of the revision plan and can export it as .ics.
func NewPlanCmd(configPath *string) *cobra.Command {
	var (
		week    int
		icsPath string
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the revision plan laid out by week",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd.Context(), cmd.OutOrStdout(), *configPath, week, icsPath)
		},
	}
	cmd.Flags().IntVar(&week, "week", 0, "week offset from the current week")
	cmd.Flags().StringVar(&icsPath, "ics", "", "also write the whole plan to this iCalendar file")
	return cmd
}

func runPlan(ctx context.Context, out io.Writer, configPath string, week int, icsPath string) error {
	c, err := buildComponents(ctx, configPath)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.service.Reload(ctx); err != nil {
		return err
	}
	if len(c.service.Plan()) == 0 {
		fmt.Fprintln(out, "No study plan yet. Ingest some documents first.")
		return nil
	}

	now := time.Now()
	planner := c.service.Planner(now)
	planner.SetWeek(week)
	printWeek(out, planner)

	if icsPath == "" {
		return nil
	}
	f, err := os.Create(icsPath)
	if err != nil {
		return err
	}
	if err := planner.ExportICS(f, now); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(out, "Plan written to %s\n", icsPath)
	return nil
}

func printWeek(out io.Writer, planner *app.PlanScheduler) {
	w := planner.Week()
	fmt.Fprintf(out, "Week of %s - %s\n", w.Start.Format("Jan 2"), w.End.Format("Jan 2, 2006"))
	for _, day := range w.Days {
		topics := make([]string, 0, len(day.Topics))
		for _, item := range day.Topics {
			topics = append(topics, fmt.Sprintf("%s [%s]", item.Topic, item.Status))
		}
		line := "-"
		if len(topics) > 0 {
			line = strings.Join(topics, ", ")
		}
		fmt.Fprintf(out, "  %s  %s\n", day.Date.Format("Mon 02"), line)
	}

	stats := planner.Stats()
	fmt.Fprintf(out, "Progress: %d/%d topics (%d%%)\n", stats.Completed, stats.Total, stats.CompletionPercent)
	fmt.Fprintln(out, "Upcoming:")
	for _, u := range planner.Upcoming() {
		fmt.Fprintf(out, "  %s  %s [%s]\n", u.Date.Format("Mon Jan 2"), u.Topic, u.Status)
	}
}
