package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/openmined/chunksync/internal/config"
	"github.com/openmined/chunksync/internal/syncer"
)

const recentEvents = 8

var watchStates = []syncer.FileState{
	syncer.StateWritten,
	syncer.StateUnchanged,
	syncer.StateUploaded,
	syncer.StateManifestUpdated,
	syncer.StateSkipped,
	syncer.StateFailed,
}

type statusMsg struct{ event *syncer.StatusEvent }

type passMsg struct {
	result *syncer.Result
	err    error
}

type watchDoneMsg struct{ err error }

type watchModel struct {
	buildFolder string
	remote      string
	tracker     *syncer.StatusTracker
	events      <-chan *syncer.StatusEvent
	spinner     spinner.Model

	counts  map[syncer.FileState]int
	recent  []string
	passes  int
	running bool
	summary string
	err     error
}

func newWatchModel(cfg *config.Config, tracker *syncer.StatusTracker, events <-chan *syncer.StatusEvent) watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = cyan

	remote := cfg.Remote.URL
	if cfg.Remote.Backend == config.RemoteSQLite {
		remote = cfg.Remote.DBPath
	}

	return watchModel{
		buildFolder: cfg.BuildFolder,
		remote:      remote,
		tracker:     tracker,
		events:      events,
		spinner:     s,
		counts:      make(map[syncer.FileState]int),
		running:     true,
	}
}

func waitForStatus(events <-chan *syncer.StatusEvent) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return statusMsg{event: ev}
	}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForStatus(m.events))
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case statusMsg:
		m.running = true
		m.counts = m.tracker.Counts()
		line := fmt.Sprintf("%-16s %s", msg.event.Status.State, msg.event.Path)
		m.recent = append(m.recent, line)
		if len(m.recent) > recentEvents {
			m.recent = m.recent[len(m.recent)-recentEvents:]
		}
		return m, waitForStatus(m.events)

	case passMsg:
		m.running = false
		m.passes++
		m.counts = m.tracker.Counts()
		m.err = msg.err
		if msg.result != nil {
			var b strings.Builder
			printResult(&b, msg.result)
			m.summary = strings.TrimRight(b.String(), "\n")
		}

	case watchDoneMsg:
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m watchModel) View() string {
	var b strings.Builder
	b.WriteString(cyan.Bold(true).Render(chunksyncArt))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s%s\n", gray.Render("Build   "), green.Render(m.buildFolder))
	fmt.Fprintf(&b, "%s%s\n", gray.Render("Remote  "), green.Render(m.remote))
	fmt.Fprintf(&b, "%s%d\n\n", gray.Render("Passes  "), m.passes)

	if m.running {
		fmt.Fprintf(&b, "%s syncing\n", m.spinner.View())
	} else {
		b.WriteString(gray.Render("watching for changes") + "\n")
	}

	var counts []string
	for _, st := range watchStates {
		counts = append(counts, fmt.Sprintf("%s %d", st, m.counts[st]))
	}
	b.WriteString(gray.Render(strings.Join(counts, "  ")) + "\n\n")

	for _, line := range m.recent {
		b.WriteString("  " + line + "\n")
	}
	if m.summary != "" {
		b.WriteString("\n" + m.summary + "\n")
	}
	if m.err != nil {
		b.WriteString("\n" + red.Render("ERROR: ") + m.err.Error() + "\n")
	}
	b.WriteString("\n" + gray.Render("Press 'q' to quit.") + "\n")
	return b.String()
}

// runWatchTUI runs the watch loop behind a live status view. Console logging
// is muted while the view owns the terminal.
func runWatchTUI(ctx context.Context, driver *syncer.Driver, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prevLevel := logLevel.Level()
	logLevel.Set(slog.LevelError + 4)
	defer logLevel.Set(prevLevel)

	tracker := driver.Status()
	events := tracker.Subscribe()
	defer tracker.Unsubscribe(events)

	p := tea.NewProgram(newWatchModel(cfg, tracker, events), tea.WithContext(ctx), tea.WithAltScreen())
	go func() {
		err := driver.Watch(ctx, func(result *syncer.Result, err error) {
			p.Send(passMsg{result: result, err: err})
		})
		p.Send(watchDoneMsg{err: err})
	}()

	final, err := p.Run()
	cancel()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("status view: %w", err)
	}
	if fm, ok := final.(watchModel); ok && fm.err != nil && !errors.Is(fm.err, context.Canceled) {
		return fm.err
	}
	return nil
}
