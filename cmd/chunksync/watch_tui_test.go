package main

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/openmined/chunksync/internal/config"
	"github.com/openmined/chunksync/internal/syncer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatchModel(t *testing.T) (watchModel, *syncer.StatusTracker) {
	t.Helper()
	cfg, err := config.Defaults()
	require.NoError(t, err)
	tracker := syncer.NewStatusTracker()
	events := tracker.Subscribe()
	t.Cleanup(func() { tracker.Unsubscribe(events) })
	return newWatchModel(cfg, tracker, events), tracker
}

func TestWatchModelStatusEvents(t *testing.T) {
	m, tracker := newTestWatchModel(t)

	for i := range recentEvents + 2 {
		path := "/f" + string(rune('a'+i))
		tracker.Set(path, syncer.StateWritten)
		next, cmd := m.Update(statusMsg{event: &syncer.StatusEvent{Path: path, Status: syncer.FileStatus{State: syncer.StateWritten}}})
		m = next.(watchModel)
		assert.NotNil(t, cmd, "keeps listening for events")
	}

	assert.Len(t, m.recent, recentEvents)
	assert.Contains(t, m.recent[len(m.recent)-1], "/fj")
	assert.Equal(t, recentEvents+2, m.counts[syncer.StateWritten])
	assert.Contains(t, m.View(), "written 10")
}

func TestWatchModelPass(t *testing.T) {
	m, _ := newTestWatchModel(t)

	next, _ := m.Update(passMsg{err: errors.New("manifest is locked")})
	m = next.(watchModel)
	assert.False(t, m.running)
	assert.Equal(t, 1, m.passes)
	assert.Contains(t, m.View(), "manifest is locked")
	assert.Contains(t, m.View(), "watching for changes")
}

func TestWatchModelQuit(t *testing.T) {
	m, _ := newTestWatchModel(t)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())

	_, cmd = m.Update(watchDoneMsg{})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
