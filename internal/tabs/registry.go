// Package tabs keeps the browser session's open tabs, as reported by the
// extension, so bulk jobs can read live page content.
package tabs

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kiranshivaraju/fineprint/pkg/models"
)

var ErrInvalidTab = errors.New("tab id and url are required")

// Registry is an in-memory TabSource. The extension replaces the full tab set
// on every sync; tabs missing from a sync count as closed.
type Registry struct {
	mu   sync.RWMutex
	tabs map[string]models.Tab
	now  func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		tabs: make(map[string]models.Tab),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Replace swaps in the current set of open tabs.
func (r *Registry) Replace(tabs []models.Tab) error {
	next := make(map[string]models.Tab, len(tabs))
	now := r.now()
	for _, t := range tabs {
		t.ID = strings.TrimSpace(t.ID)
		t.URL = strings.TrimSpace(t.URL)
		if t.ID == "" || t.URL == "" {
			return ErrInvalidTab
		}
		t.UpdatedAt = now
		next[t.ID] = t
	}

	r.mu.Lock()
	r.tabs = next
	r.mu.Unlock()
	return nil
}

// ListTabs returns the open tabs ordered by id.
func (r *Registry) ListTabs(_ context.Context) ([]models.Tab, error) {
	r.mu.RLock()
	out := make([]models.Tab, 0, len(r.tabs))
	for _, t := range r.tabs {
		out = append(out, t)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// TabContent returns a tab's text; open is false once the tab has gone.
func (r *Registry) TabContent(_ context.Context, tabID string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tabs[tabID]
	if !ok {
		return "", false, nil
	}
	return t.Content, true, nil
}
