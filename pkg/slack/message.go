package slack

import (
	"fmt"

	goslack "github.com/slack-go/slack"
)

const maxBlockTextLength = 2900

// BuildRegressionMessage creates Block Kit blocks for a regression alert.
// fingerprint is embedded as invisible-to-the-reader trailing text so
// FindMessageByFingerprint can dedupe future posts for the same run.
func BuildRegressionMessage(alert RegressionAlert, dashboardURL, fingerprint string) []goslack.Block {
	header := fmt.Sprintf(":rotating_light: *Regression detected in %q*", alert.DatasetName)
	if alert.DatasetVersion != "" {
		header += fmt.Sprintf(" (version %s)", alert.DatasetVersion)
	}

	detail := fmt.Sprintf(
		"accuracy drop: *%.1f%%*\np95 latency increase: *%.1f%%*\ncomposite score: *%.3f*",
		alert.AccuracyDrop*100, alert.P95LatencyIncreaseRatio*100, alert.CompositeScore,
	)
	if alert.BaselineReportID != "" {
		detail += fmt.Sprintf("\nbaseline: `%s`", alert.BaselineReportID)
	}
	// fingerprint is embedded in the message body so a later search by
	// FindMessageByFingerprint can recognize this alert as already posted.
	detail += fmt.Sprintf("\n_%s_", truncateForSlack(fingerprint))

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, detail, false, false),
			nil, nil,
		),
	}

	if dashboardURL != "" {
		url := fmt.Sprintf("%s/api/v1/regression-report/%s", dashboardURL, alert.RunID)
		btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "View Report", false, false))
		btn.URL = url
		blocks = append(blocks, goslack.NewActionBlock("", btn))
	}

	return blocks
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated)_"
}
