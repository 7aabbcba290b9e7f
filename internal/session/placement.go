package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ryadrakem/mms-V2/internal/model"
)

// Mover relocates the live video surface without reinitializing it.
type Mover func(ctx context.Context, dock model.Dock) error

type View struct {
	Tab  model.Tab  `json:"active_tab"`
	Dock model.Dock `json:"video_docked"`
}

// Placement tracks the active tab and where the video surface is docked.
// Physical moves are deferred by the settle delay so the target container
// exists; only the latest scheduled move runs.
type Placement struct {
	settle time.Duration
	move   Mover
	log    zerolog.Logger

	mu      sync.Mutex
	view    View
	gen     uint64
	pending *time.Timer
	closed  bool
}

func NewPlacement(settle time.Duration, move Mover, log zerolog.Logger) *Placement {
	return &Placement{
		settle: settle,
		move:   move,
		log:    log,
		view:   View{Tab: model.TabVideo, Dock: model.DockMain},
	}
}

// Reset returns to the video tab with the surface in the main area.
func (p *Placement) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked()
	p.closed = false
	p.view = View{Tab: model.TabVideo, Dock: model.DockMain}
}

func (p *Placement) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view
}

// SetActiveTab switches tabs. Leaving video docks the surface in the
// sidebar; entering video brings it back to the main area.
func (p *Placement) SetActiveTab(tab model.Tab) View {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.view.Tab
	p.view.Tab = tab
	switch {
	case prev == model.TabVideo && tab != model.TabVideo:
		p.dockLocked(model.DockSidebar)
	case prev != model.TabVideo && tab == model.TabVideo:
		p.dockLocked(model.DockMain)
	}
	return p.view
}

// Toggle opens tab, or returns to video when tab is already active.
func (p *Placement) Toggle(tab model.Tab) View {
	if p.View().Tab == tab {
		return p.SetActiveTab(model.TabVideo)
	}
	return p.SetActiveTab(tab)
}

// ShowPip docks the surface in the sidebar regardless of the tab.
func (p *Placement) ShowPip() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dockLocked(model.DockSidebar)
	return p.view
}

// ClosePip brings the surface back to the main area, switching to the
// video tab since only that tab hosts it.
func (p *Placement) ClosePip() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.view.Tab = model.TabVideo
	p.dockLocked(model.DockMain)
	return p.view
}

// Close drops any pending move and ignores later ones.
func (p *Placement) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelLocked()
	p.closed = true
}

func (p *Placement) cancelLocked() {
	p.gen++
	if p.pending != nil {
		p.pending.Stop()
		p.pending = nil
	}
}

func (p *Placement) dockLocked(dock model.Dock) {
	p.view.Dock = dock
	if p.closed || p.move == nil {
		return
	}
	p.cancelLocked()
	gen := p.gen
	p.pending = time.AfterFunc(p.settle, func() {
		p.mu.Lock()
		if gen != p.gen || p.closed {
			p.mu.Unlock()
			return
		}
		p.pending = nil
		p.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.move(ctx, dock); err != nil {
			p.log.Warn().Err(err).Str("dock", string(dock)).Msg("move video surface failed")
		}
	})
}
