package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"studybuddy-client/internal/app"
	"studybuddy-client/internal/domain"
)

// NewIngestCmd uploads documents and waits for generation, printing progress.
func NewIngestCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Upload documents and generate flashcards, quizzes and a plan",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), cmd.OutOrStdout(), *configPath, args)
		},
	}
}

func runIngest(ctx context.Context, out io.Writer, configPath string, paths []string) error {
	files := make([]domain.UploadFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		files = append(files, domain.UploadFile{Name: filepath.Base(p), Data: data})
	}

	c, err := buildComponents(ctx, configPath)
	if err != nil {
		return err
	}
	defer c.Close()

	o := c.orchestrator()
	if err := o.Queue(files...); err != nil {
		return err
	}

	updates, cancel := o.Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		last := ""
		for status := range updates {
			if line := progressLine(status); line != last {
				fmt.Fprintln(out, line)
				last = line
			}
		}
	}()

	status, err := c.service.Ingest(ctx, o)
	cancel()
	<-printed
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Finished in %s: %d flashcards, %d quizzes, %d plan entries\n",
		app.FormatElapsed(status.Elapsed(time.Now())),
		len(c.service.Flashcards()), len(c.service.Quizzes()), len(c.service.Plan()))
	return nil
}

// progressLine renders a status as one terminal line. Upload progress is
// bucketed to 10% so the output stays readable.
func progressLine(s app.IngestionStatus) string {
	switch s.Phase {
	case domain.PhaseUploading:
		return fmt.Sprintf("%s %3d%%", s.Text, int(s.FileProgress*10)*10)
	case domain.PhaseGenerating:
		if s.Generation.Progress > 0 {
			return fmt.Sprintf("%s %3d%%", s.Text, s.Generation.Progress)
		}
	}
	return s.Text
}
