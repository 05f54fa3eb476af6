package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rubiojr/quack/pkg/core"
	"github.com/rubiojr/quack/pkg/log"
	"github.com/rubiojr/quack/pkg/realtime"
	"github.com/rubiojr/quack/pkg/store"
	"github.com/urfave/cli/v3"
)

// TUICommand creates the interactive client command
func TUICommand() *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Interactive search client",
		Flags: []cli.Flag{serverFlag()},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			cl, err := newClient(c, cfg)
			if err != nil {
				return err
			}

			health, err := cl.Health(ctx)
			if err != nil {
				return fmt.Errorf("server health check failed: %w", err)
			}
			log.ForService("tui").Debugf("server %v, provider %v (%v)", health["version"], health["provider"], health["provider_state"])

			m := newTUIModel(ctx, store.New(cl))
			m.watcher = cl
			defer m.close()
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
			return err
		},
	}
}

type focus int

const (
	focusInput focus = iota
	focusHistory
)

// stateChangedMsg signals that the store published a new state.
type stateChangedMsg struct{}

type searchDoneMsg struct{ err error }

type tuiModel struct {
	ctx         context.Context
	store       *store.Store
	changed     chan struct{}
	unsubscribe func()
	watcher     historyWatcher

	input    textinput.Model
	spinner  spinner.Model
	state    store.State
	focus    focus
	selected int
	status   string
}

func newTUIModel(ctx context.Context, st *store.Store) *tuiModel {
	ti := textinput.New()
	ti.Placeholder = "Search the web..."
	ti.CharLimit = core.MaxQueryLength
	ti.Prompt = "🦆 "
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := &tuiModel{
		ctx:     ctx,
		store:   st,
		changed: make(chan struct{}, 1),
		input:   ti,
		spinner: sp,
		state:   st.Snapshot(),
	}
	m.unsubscribe = st.Subscribe(func(store.State) {
		select {
		case m.changed <- struct{}{}:
		default:
		}
	})
	return m
}

func (m *tuiModel) close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func (m *tuiModel) waitForChange() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.changed:
			return stateChangedMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func (m *tuiModel) loadHistory() tea.Cmd {
	return func() tea.Msg {
		m.store.LoadHistory(m.ctx)
		return nil
	}
}

// watchHistory reloads the history whenever the server reports a change,
// and after every reconnect.
func (m *tuiModel) watchHistory() tea.Cmd {
	if m.watcher == nil {
		return nil
	}
	return func() tea.Msg {
		logger := log.ForService("tui")
		seenInit := false
		opts := watchOptions{initialBackoff: time.Second, maxBackoff: 30 * time.Second}
		err := followHistory(m.ctx, m.watcher, opts, logger.Debugf, func(msg realtime.Message) {
			if msg.Type == realtime.TypeInit && !seenInit {
				seenInit = true
				return
			}
			m.store.LoadHistory(m.ctx)
		})
		if err != nil && m.ctx.Err() == nil {
			return statusMsg(fmt.Sprintf("History updates stopped: %v", err))
		}
		return nil
	}
}

func (m *tuiModel) search(query string) tea.Cmd {
	return func() tea.Msg {
		return searchDoneMsg{err: m.store.Search(m.ctx, query)}
	}
}

func (m *tuiModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.waitForChange(), m.loadHistory(), m.watchHistory())
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stateChangedMsg:
		m.state = m.store.Snapshot()
		if m.selected >= len(m.state.History) {
			m.selected = max(0, len(m.state.History)-1)
		}
		return m, m.waitForChange()

	case searchDoneMsg:
		m.state = m.store.Snapshot()
		return m, nil

	case statusMsg:
		m.status = string(msg)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "tab":
		if m.focus == focusInput && len(m.state.History) > 0 {
			m.focus = focusHistory
			m.input.Blur()
		} else {
			m.focus = focusInput
			m.input.Focus()
		}
		return m, nil
	case "pgdown", "ctrl+n":
		m.store.SetCurrentPage(m.state.CurrentPage + 1)
		return m, nil
	case "pgup", "ctrl+p":
		m.store.SetCurrentPage(m.state.CurrentPage - 1)
		return m, nil
	}

	if m.focus == focusHistory {
		return m.handleHistoryKey(msg)
	}

	if msg.Type == tea.KeyEnter {
		query := strings.TrimSpace(m.input.Value())
		if query == "" {
			return m, nil
		}
		m.status = ""
		return m, m.search(query)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *tuiModel) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		if m.selected < len(m.state.History)-1 {
			m.selected++
		}
	case "enter":
		if m.selected < len(m.state.History) {
			query := m.state.History[m.selected].Query
			m.input.SetValue(query)
			m.focus = focusInput
			m.input.Focus()
			return m, m.search(query)
		}
	case "d", "delete":
		index := m.selected
		return m, func() tea.Msg {
			if err := m.store.RemoveHistoryEntry(m.ctx, index); err != nil {
				return statusMsg(fmt.Sprintf("Could not remove entry: %v", err))
			}
			return nil
		}
	case "D":
		return m, func() tea.Msg {
			if err := m.store.ClearHistory(m.ctx); err != nil {
				return statusMsg(fmt.Sprintf("Could not clear history: %v", err))
			}
			return nil
		}
	}
	return m, nil
}

type statusMsg string

func (m *tuiModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("quack"))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	if m.state.IsLoading {
		b.WriteString(" " + m.spinner.View())
	}
	b.WriteString("\n\n")

	switch {
	case m.state.Err != "":
		b.WriteString(errorStyle.Render(m.state.Err))
		b.WriteString("\n")
	case m.state.HasSearched && !m.state.IsLoading:
		b.WriteString(renderResults(m.state, m.store.PageResults(), m.store.TotalPages()))
	}

	b.WriteString("\n")
	b.WriteString(m.viewHistory())

	if m.status != "" {
		b.WriteString("\n" + errorStyle.Render(m.status) + "\n")
	}
	b.WriteString("\n" + metaStyle.Render("enter search · tab history · pgup/pgdown pages · d delete · D clear · esc quit"))
	return b.String()
}

func (m *tuiModel) viewHistory() string {
	var b strings.Builder
	header := "Recent searches"
	if m.state.IsHistoryLoading {
		header += " " + m.spinner.View()
	}
	b.WriteString(metaStyle.Render(header))
	b.WriteString("\n")

	if len(m.state.History) == 0 {
		b.WriteString(metaStyle.Render("  none"))
		b.WriteString("\n")
		return b.String()
	}
	for i, e := range m.state.History {
		cursor := "  "
		line := e.Query
		if m.focus == focusHistory && i == m.selected {
			cursor = "> "
			line = currentPageStyle.Render(line)
		}
		b.WriteString(cursor + line + "\n")
	}
	return b.String()
}
