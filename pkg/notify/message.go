package notify

import (
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/taskweave/taskweave/pkg/workflow"
)

const maxBlockTextLength = 2900

var statusEmoji = map[workflow.Status]string{
	workflow.StatusCompleted:      ":white_check_mark:",
	workflow.StatusPartialSuccess: ":warning:",
	workflow.StatusFailed:         ":x:",
}

var statusLabel = map[workflow.Status]string{
	workflow.StatusCompleted:      "Workflow Complete",
	workflow.StatusPartialSuccess: "Workflow Partially Complete",
	workflow.StatusFailed:         "Workflow Failed",
}

// BuildTerminalMessage creates Block Kit blocks for a workflow terminal
// notification.
func BuildTerminalMessage(snapshot workflow.Snapshot) []goslack.Block {
	emoji := statusEmoji[snapshot.Status]
	if emoji == "" {
		emoji = ":question:"
	}
	label := statusLabel[snapshot.Status]
	if label == "" {
		label = "Workflow " + string(snapshot.Status)
	}

	succeeded := 0
	for _, r := range snapshot.Results {
		if r.Success {
			succeeded++
		}
	}

	header := fmt.Sprintf("%s *%s*\n`%s`", emoji, label, snapshot.WorkflowID)
	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
	}

	body := fmt.Sprintf("*Task:* %s\n*Steps:* %d of %d succeeded",
		truncateForSlack(snapshot.InitialTask), succeeded, len(snapshot.Results))
	if snapshot.Status == workflow.StatusFailed && snapshot.ErrorText != "" {
		body += fmt.Sprintf("\n*Error:* %s: %s", snapshot.Error,
			truncateForSlack(snapshot.ErrorText))
	}
	blocks = append(blocks, goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, body, false, false),
		nil, nil,
	))

	return blocks
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated)_"
}
