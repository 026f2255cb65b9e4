package slack

import (
	"strings"
	"testing"
	"unicode/utf8"

	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRegressionMessage(t *testing.T) {
	alert := RegressionAlert{
		RunID:                   "run-123",
		DatasetName:             "nightly",
		DatasetVersion:          "v3",
		BaselineReportID:        "run-100",
		CompositeScore:          0.71,
		AccuracyDrop:            0.08,
		P95LatencyIncreaseRatio: 0.25,
	}
	blocks := BuildRegressionMessage(alert, "https://agent.example.com", "regression-run:run-123")

	require.Len(t, blocks, 3)

	header := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, header.Text.Text, ":rotating_light:")
	assert.Contains(t, header.Text.Text, "nightly")
	assert.Contains(t, header.Text.Text, "v3")

	detail := blocks[1].(*goslack.SectionBlock)
	assert.Contains(t, detail.Text.Text, "8.0%")
	assert.Contains(t, detail.Text.Text, "25.0%")
	assert.Contains(t, detail.Text.Text, "run-100")
	assert.Contains(t, detail.Text.Text, "regression-run:run-123")

	action := blocks[2].(*goslack.ActionBlock)
	btn := action.Elements.ElementSet[0].(*goslack.ButtonBlockElement)
	assert.Contains(t, btn.URL, "https://agent.example.com/api/v1/regression-report/run-123")
}

func TestBuildRegressionMessage_NoDashboardURL(t *testing.T) {
	alert := RegressionAlert{RunID: "run-1", DatasetName: "nightly"}
	blocks := BuildRegressionMessage(alert, "", "regression-run:run-1")

	require.Len(t, blocks, 2)
	for _, b := range blocks {
		_, isAction := b.(*goslack.ActionBlock)
		assert.False(t, isAction, "no action block expected without a dashboard URL")
	}
}

func TestTruncateForSlack(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		assert.Equal(t, "hello", truncateForSlack("hello"))
	})

	t.Run("exact limit unchanged", func(t *testing.T) {
		text := strings.Repeat("a", maxBlockTextLength)
		assert.Equal(t, text, truncateForSlack(text))
	})

	t.Run("over limit truncated", func(t *testing.T) {
		text := strings.Repeat("a", maxBlockTextLength+100)
		result := truncateForSlack(text)
		assert.True(t, len(result) < len(text))
		assert.Contains(t, result, "truncated")
	})

	t.Run("multi-byte runes not split", func(t *testing.T) {
		text := strings.Repeat("🔥", maxBlockTextLength+10)
		result := truncateForSlack(text)
		assert.Contains(t, result, "truncated")
		assert.True(t, utf8.ValidString(result), "result should be valid UTF-8")
		prefix := strings.Split(result, "\n\n_...")[0]
		assert.Equal(t, maxBlockTextLength, utf8.RuneCountInString(prefix))
	})
}
