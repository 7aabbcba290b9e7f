package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryadrakem/mms-V2/internal/model"
)

type moveLog struct {
	mu    sync.Mutex
	docks []model.Dock
}

func (m *moveLog) move(_ context.Context, d model.Dock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docks = append(m.docks, d)
	return nil
}

func (m *moveLog) all() []model.Dock {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Dock(nil), m.docks...)
}

func TestPlacementRoundTripDocksMain(t *testing.T) {
	var log moveLog
	p := NewPlacement(5*time.Millisecond, log.move, zerolog.Nop())

	v := p.SetActiveTab(model.TabNotes)
	assert.Equal(t, View{Tab: model.TabNotes, Dock: model.DockSidebar}, v)
	require.Eventually(t, func() bool { return len(log.all()) == 1 }, time.Second, time.Millisecond)

	v = p.SetActiveTab(model.TabVideo)
	assert.Equal(t, View{Tab: model.TabVideo, Dock: model.DockMain}, v)
	require.Eventually(t, func() bool { return len(log.all()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []model.Dock{model.DockSidebar, model.DockMain}, log.all())
}

func TestPlacementRunsOnlyLatestMove(t *testing.T) {
	var log moveLog
	p := NewPlacement(50*time.Millisecond, log.move, zerolog.Nop())

	p.SetActiveTab(model.TabAgenda)
	p.SetActiveTab(model.TabVideo)

	require.Eventually(t, func() bool { return len(log.all()) == 1 }, time.Second, time.Millisecond)
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, []model.Dock{model.DockMain}, log.all())
}

func TestPlacementSwitchBetweenSideTabsKeepsDock(t *testing.T) {
	var log moveLog
	p := NewPlacement(time.Millisecond, log.move, zerolog.Nop())

	p.SetActiveTab(model.TabNotes)
	require.Eventually(t, func() bool { return len(log.all()) == 1 }, time.Second, time.Millisecond)

	v := p.SetActiveTab(model.TabActions)
	assert.Equal(t, model.DockSidebar, v.Dock)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, log.all(), 1)
}

func TestPlacementToggleAndPip(t *testing.T) {
	p := NewPlacement(time.Millisecond, nil, zerolog.Nop())

	assert.Equal(t, model.TabNotes, p.Toggle(model.TabNotes).Tab)
	assert.Equal(t, View{Tab: model.TabVideo, Dock: model.DockMain}, p.Toggle(model.TabNotes))

	assert.Equal(t, View{Tab: model.TabVideo, Dock: model.DockSidebar}, p.ShowPip())
	assert.Equal(t, View{Tab: model.TabVideo, Dock: model.DockMain}, p.ClosePip())

	p.SetActiveTab(model.TabAgenda)
	assert.Equal(t, View{Tab: model.TabVideo, Dock: model.DockMain}, p.ClosePip())
}

func TestPlacementCloseDropsPendingMove(t *testing.T) {
	var log moveLog
	p := NewPlacement(20*time.Millisecond, log.move, zerolog.Nop())

	p.SetActiveTab(model.TabNotes)
	p.Close()
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, log.all())
	assert.Equal(t, model.DockSidebar, p.View().Dock)
}
