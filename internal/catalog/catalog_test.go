package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spboyer/promptbench/internal/execution"
	"github.com/spboyer/promptbench/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func TestListModels_CachesWithinTTL(t *testing.T) {
	ctrl := gomock.NewController(t)
	lister := execution.NewMockModelLister(ctrl)
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	first := []models.ModelInfo{{ID: "a"}}
	second := []models.ModelInfo{{ID: "a"}, {ID: "b"}}

	gomock.InOrder(
		lister.EXPECT().ListModels(gomock.Any()).Return(first, nil),
		lister.EXPECT().ListModels(gomock.Any()).Return(second, nil),
	)

	c := New(lister, WithClock(clock.Now))

	got, err := c.ListModels(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, first, got)

	clock.now = clock.now.Add(59 * time.Minute)
	got, err = c.ListModels(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, first, got, "served from cache")

	clock.now = clock.now.Add(2 * time.Minute)
	got, err = c.ListModels(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, second, got, "expired entries are refetched")
}

func TestListModels_ForceRefresh(t *testing.T) {
	ctrl := gomock.NewController(t)
	lister := execution.NewMockModelLister(ctrl)

	lister.EXPECT().ListModels(gomock.Any()).Return([]models.ModelInfo{{ID: "a"}}, nil).Times(2)

	c := New(lister)
	_, err := c.ListModels(context.Background(), false)
	require.NoError(t, err)
	_, err = c.ListModels(context.Background(), true)
	require.NoError(t, err)
}

func TestListModels_FetchErrorKeepsPreviousCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	lister := execution.NewMockModelLister(ctrl)

	gomock.InOrder(
		lister.EXPECT().ListModels(gomock.Any()).Return([]models.ModelInfo{{ID: "a"}}, nil),
		lister.EXPECT().ListModels(gomock.Any()).Return(nil, errors.New("upstream down")),
	)

	c := New(lister)
	_, err := c.ListModels(context.Background(), false)
	require.NoError(t, err)

	_, err = c.ListModels(context.Background(), true)
	require.ErrorContains(t, err, "upstream down")

	got, err := c.ListModels(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, []models.ModelInfo{{ID: "a"}}, got)
}

func TestListModels_ReturnsCopies(t *testing.T) {
	c := New(StaticModels{{ID: "a"}})

	got, err := c.ListModels(context.Background(), false)
	require.NoError(t, err)
	got[0].ID = "changed"

	again, err := c.ListModels(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, "a", again[0].ID)
}

func TestListModels_DiskCache(t *testing.T) {
	dir := t.TempDir()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	ctrl := gomock.NewController(t)
	lister := execution.NewMockModelLister(ctrl)
	lister.EXPECT().ListModels(gomock.Any()).Return([]models.ModelInfo{{ID: "cached"}}, nil).Times(1)

	_, err := New(lister, WithCacheDir(dir), WithClock(clock.Now)).ListModels(context.Background(), false)
	require.NoError(t, err)

	// a second process within the TTL does not hit the backend
	offline := execution.NewMockModelLister(ctrl)
	got, err := New(offline, WithCacheDir(dir), WithClock(clock.Now)).ListModels(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, []models.ModelInfo{{ID: "cached"}}, got)
}

func TestStaticModelsFromIDs(t *testing.T) {
	list := StaticModelsFromIDs([]string{"gpt-4o", "claude-sonnet-4"})
	got, err := list.ListModels(context.Background())
	require.NoError(t, err)
	require.Equal(t, []models.ModelInfo{{ID: "gpt-4o"}, {ID: "claude-sonnet-4"}}, got)
}
