// Package tui provides the interactive terminal console.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/osa030/wavbox/internal/api/command"
	"github.com/osa030/wavbox/internal/app/playback"
	"github.com/osa030/wavbox/internal/domain/track"
)

const (
	volumeStep      = 16
	refreshInterval = 500 * time.Millisecond
	maxEventLines   = 5
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	replyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	stateStyles = map[playback.State]lipgloss.Style{
		playback.StateIdle:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		playback.StateReady:   lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		playback.StatePlaying: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		playback.StatePaused:  lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
	}
)

// Player is the engine surface the console drives and displays.
type Player interface {
	command.Player
	State() playback.State
	Current() (track.Info, bool)
	Volume() uint8
	Muted() bool
}

// statusMsg is a snapshot of the engine.
type statusMsg struct {
	state  playback.State
	track  track.Info
	loaded bool
	volume uint8
	muted  bool
}

type tickMsg time.Time

// eventMsg carries a pushed playback event.
type eventMsg playback.Event

// Model is the bubbletea model of the console.
type Model struct {
	ctx    context.Context
	player Player

	status statusMsg
	reply  string
	events []string
	width  int
}

// NewModel creates a console model for player.
func NewModel(ctx context.Context, player Player) Model {
	return Model{ctx: ctx, player: player}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refresh, tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) refresh() tea.Msg {
	info, loaded := m.player.Current()
	return statusMsg{
		state:  m.player.State(),
		track:  info,
		loaded: loaded,
		volume: m.player.Volume(),
		muted:  m.player.Muted(),
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case statusMsg:
		m.status = msg
	case tickMsg:
		return m, tea.Batch(m.refresh, tick())
	case eventMsg:
		m.events = append(m.events, formatEvent(playback.Event(msg)))
		if len(m.events) > maxEventLines {
			m.events = m.events[len(m.events)-maxEventLines:]
		}
		return m, m.refresh
	}
	return m, nil
}

// keyCommand maps a key to a command for the current status.
func (m Model) keyCommand(key string) (command.Command, bool) {
	switch key {
	case "n", ">":
		return command.Command{Kind: command.KindNext}, true
	case "b", "<":
		return command.Command{Kind: command.KindPrevious}, true
	case " ", "space":
		if m.status.state == playback.StatePlaying {
			return command.Command{Kind: command.KindPause}, true
		}
		return command.Command{Kind: command.KindResume}, true
	case "s":
		return command.Command{Kind: command.KindStop}, true
	case "m":
		if m.status.muted {
			return command.Command{Kind: command.KindUnmute}, true
		}
		return command.Command{Kind: command.KindMute}, true
	case "+", "=":
		v := min(int(m.status.volume)+volumeStep, 255)
		return command.Command{Kind: command.KindVolume, Volume: uint8(v)}, true
	case "-":
		v := max(int(m.status.volume)-volumeStep, 0)
		return command.Command{Kind: command.KindVolume, Volume: uint8(v)}, true
	}
	return command.Command{}, false
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == "q" || key == "ctrl+c" {
		return m, tea.Quit
	}

	cmd, ok := m.keyCommand(key)
	if !ok {
		return m, nil
	}
	m.reply = strings.TrimSpace(command.Execute(m.ctx, m.player, cmd))
	return m, m.refresh
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("wavbox"))
	b.WriteString("\n\n")

	st := m.status
	stateStyle, ok := stateStyles[st.state]
	if !ok {
		stateStyle = valueStyle
	}
	m.row(&b, "State", stateStyle.Render(st.state.String()))

	name := st.track.Name
	if name == "" {
		name = "-"
	}
	m.row(&b, "Track", valueStyle.Render(name))
	if st.loaded {
		m.row(&b, "Format", valueStyle.Render(fmt.Sprintf("%d Hz", st.track.SampleRate)))
		m.row(&b, "Remaining", valueStyle.Render(fmt.Sprintf("%d / %d bytes", st.track.RemainingBytes, st.track.TotalDataBytes)))
	}

	volume := fmt.Sprintf("%s %d", renderBar(int(st.volume), 255, 16), st.volume)
	if st.muted {
		volume += " (muted)"
	}
	m.row(&b, "Volume", valueStyle.Render(volume))

	if m.reply != "" {
		b.WriteString("\n")
		b.WriteString(replyStyle.Render(m.reply))
		b.WriteString("\n")
	}

	if len(m.events) > 0 {
		b.WriteString("\n")
		for _, ev := range m.events {
			b.WriteString(helpStyle.Render(ev))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("n:next  b:previous  space:play/pause  s:stop  m:mute  +/-:volume  q:quit"))
	b.WriteString("\n")
	return b.String()
}

func (m Model) row(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(fmt.Sprintf("%-10s", label)))
	b.WriteString(value)
	b.WriteString("\n")
}

// renderBar renders a fixed-width level bar.
func renderBar(value, maxValue, width int) string {
	filled := value * width / maxValue
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func formatEvent(ev playback.Event) string {
	name := "-"
	if ev.Track != nil {
		name = ev.Track.Name
	}
	s := fmt.Sprintf("%s %s %s", ev.Type, name, ev.State)
	if ev.Detail != "" {
		s += " " + ev.Detail
	}
	return s
}
