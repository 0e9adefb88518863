package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/inbox-api/internal/model"
	"github.com/sells-group/inbox-api/internal/pipeline"
)

var (
	captureURL       string
	capturePageTitle string
)

var captureCmd = &cobra.Command{
	Use:   "capture <text>",
	Short: "Run the capture pipeline once from the command line",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		out, err := e.Pipeline.Capture(cmd.Context(), pipeline.CaptureInput{
			Client: model.ClientMeta{
				App:      "inbox-api-cli",
				Timezone: time.Local.String(),
			},
			RawText:    strings.Join(args, " "),
			CapturedAt: time.Now().UTC(),
			Context: model.CaptureContext{
				URL:       captureURL,
				PageTitle: capturePageTitle,
			},
		})
		if err != nil {
			return err
		}

		return printOutcome(out)
	},
}

func printOutcome(out pipeline.Outcome) error {
	var view any
	switch o := out.(type) {
	case *pipeline.Filed:
		view = map[string]any{
			"status":     "filed",
			"capture_id": o.CaptureID,
			"record_id":  o.RecordID,
			"type":       o.Classification.Type,
			"title":      o.Classification.Title,
			"confidence": o.Classification.Confidence,
		}
	case *pipeline.NeedsReview:
		view = map[string]any{
			"status":                 "needs_review",
			"capture_id":             o.CaptureID,
			"confidence":             o.Classification.Confidence,
			"clarification_question": o.Classification.ClarificationQuestion,
		}
	case *pipeline.Fixed:
		view = map[string]any{
			"status":         "fixed",
			"capture_id":     o.CaptureID,
			"record_id":      o.RecordID,
			"type":           o.Classification.Type,
			"title":          o.Classification.Title,
			"confidence":     o.Classification.Confidence,
			"change_summary": o.ChangeSummary,
		}
	}

	buf, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(buf))
	return nil
}

func init() {
	captureCmd.Flags().StringVar(&captureURL, "url", "", "source page URL")
	captureCmd.Flags().StringVar(&capturePageTitle, "title", "", "source page title")
	rootCmd.AddCommand(captureCmd)
}
