package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tag-bridge/internal/entity"
	"tag-bridge/internal/logger"
)

type recordedCommand struct {
	name string
	args []string
}

func newTestNotifier(goos string, err error) (*DesktopNotifier, *[]recordedCommand) {
	var calls []recordedCommand
	n := &DesktopNotifier{
		goos: goos,
		run: func(ctx context.Context, name string, args ...string) error {
			calls = append(calls, recordedCommand{name: name, args: args})
			return err
		},
		log: logger.Nop(),
	}
	return n, &calls
}

func TestDesktopNotifier_Darwin(t *testing.T) {
	n, calls := newTestNotifier("darwin", nil)

	err := n.Notify(context.Background(), "pin-1", entity.PriorityDecision{Score: 0.9, Disposition: entity.DispositionArchive})
	require.NoError(t, err)
	require.Len(t, *calls, 1)

	c := (*calls)[0]
	assert.Equal(t, "osascript", c.name)
	require.Len(t, c.args, 2)
	assert.Equal(t, "-e", c.args[0])
	assert.Contains(t, c.args[1], `display notification "Score: 0.90"`)
	assert.Contains(t, c.args[1], `subtitle "Pin ID: pin-1"`)
}

func TestDesktopNotifier_Linux(t *testing.T) {
	n, calls := newTestNotifier("linux", nil)

	require.NoError(t, n.Notify(context.Background(), "pin-2", entity.PriorityDecision{Score: 0.85}))
	require.Len(t, *calls, 1)

	c := (*calls)[0]
	assert.Equal(t, "notify-send", c.name)
	assert.Equal(t, []string{notifyTitle, "Pin ID: pin-2\nScore: 0.85"}, c.args)
}

func TestDesktopNotifier_CommandFailure(t *testing.T) {
	n, _ := newTestNotifier("linux", errors.New("exit status 1"))

	err := n.Notify(context.Background(), "pin-3", entity.PriorityDecision{Score: 0.8})
	require.ErrorContains(t, err, "notify-send")
}
