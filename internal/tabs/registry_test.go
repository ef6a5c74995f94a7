package tabs

import (
	"context"
	"testing"
	"time"

	"github.com/kiranshivaraju/fineprint/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ReplaceAndList(t *testing.T) {
	r := NewRegistry()
	fixed := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }
	ctx := context.Background()

	require.NoError(t, r.Replace([]models.Tab{
		{ID: "2", URL: "https://b.example/privacy", Title: "Privacy"},
		{ID: " 1 ", URL: " https://a.example/terms ", Title: "Terms", Content: "you agree"},
	}))

	tabs, err := r.ListTabs(ctx)
	require.NoError(t, err)
	require.Len(t, tabs, 2)
	assert.Equal(t, "1", tabs[0].ID)
	assert.Equal(t, "https://a.example/terms", tabs[0].URL)
	assert.Equal(t, fixed, tabs[0].UpdatedAt)

	content, open, err := r.TabContent(ctx, "1")
	require.NoError(t, err)
	assert.True(t, open)
	assert.Equal(t, "you agree", content)
}

func TestRegistry_MissingTabsAreClosed(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	require.NoError(t, r.Replace([]models.Tab{{ID: "1", URL: "https://a.example/terms"}}))
	require.NoError(t, r.Replace([]models.Tab{{ID: "2", URL: "https://b.example/terms"}}))

	_, open, err := r.TabContent(ctx, "1")
	require.NoError(t, err)
	assert.False(t, open)
}

func TestRegistry_RejectsInvalidTabs(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Replace([]models.Tab{{ID: "1", URL: "https://a.example/terms"}}))

	err := r.Replace([]models.Tab{{ID: "", URL: "https://x.example"}})
	assert.ErrorIs(t, err, ErrInvalidTab)

	// A rejected sync leaves the previous set in place.
	tabs, err := r.ListTabs(context.Background())
	require.NoError(t, err)
	assert.Len(t, tabs, 1)
}
