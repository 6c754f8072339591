package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cockroachdb/errors"

	"github.com/osa030/wavbox/internal/app/notification"
)

// programStream forwards notifications into a running program.
type programStream struct {
	program *tea.Program
}

// Send implements notification.Stream.
func (s programStream) Send(n notification.Notification) error {
	s.program.Send(eventMsg(n.Event))
	return nil
}

// Run shows the console until the user quits or ctx is done.
func Run(ctx context.Context, player Player, notifier *notification.Manager) error {
	p := tea.NewProgram(NewModel(ctx, player), tea.WithAltScreen(), tea.WithContext(ctx))

	subID := notifier.Subscribe(programStream{program: p})
	defer notifier.Unsubscribe(subID)

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return errors.Wrap(err, "console failed")
	}
	return nil
}
