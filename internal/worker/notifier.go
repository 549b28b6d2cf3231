package worker

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"tag-bridge/internal/entity"
	"tag-bridge/internal/logger"
)

const notifyTitle = "High Priority Image Found"

type commandRunner func(ctx context.Context, name string, args ...string) error

// DesktopNotifier raises an OS notification through osascript on macOS and
// notify-send elsewhere.
type DesktopNotifier struct {
	goos string
	run  commandRunner
	log  *logger.Logger
}

func NewDesktopNotifier(log *logger.Logger) *DesktopNotifier {
	if log == nil {
		log = logger.Nop()
	}
	return &DesktopNotifier{
		goos: runtime.GOOS,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
		log: log.With("component", "notifier"),
	}
}

func (n *DesktopNotifier) Notify(ctx context.Context, itemID string, decision entity.PriorityDecision) error {
	name, args := n.command(itemID, decision.Score)
	if err := n.run(ctx, name, args...); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	n.log.Info("sent notification for high-priority image", "item_id", itemID, "score", decision.Score)
	return nil
}

func (n *DesktopNotifier) command(itemID string, score float64) (string, []string) {
	body := fmt.Sprintf("Score: %.2f", score)
	subtitle := "Pin ID: " + itemID
	if n.goos == "darwin" {
		script := fmt.Sprintf("display notification %q with title %q subtitle %q", body, notifyTitle, subtitle)
		return "osascript", []string{"-e", script}
	}
	return "notify-send", []string{notifyTitle, subtitle + "\n" + body}
}
