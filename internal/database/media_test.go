package database

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-catalog/internal/events"
	"media-catalog/internal/mediatypes"
)

func TestUpsertPreservesFavorite(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	require.NoError(t, d.UpsertMedia(ctx, "/photos/a.jpg", mediatypes.KindImage, 100, 10, "/cache/a.jpg"))
	require.NoError(t, d.SetFavorite(ctx, "/photos/a.jpg", true))

	// Re-index with changed metadata; the favorite must survive.
	require.NoError(t, d.UpsertMedia(ctx, "/photos/a.jpg", mediatypes.KindImage, 200, 20, "/cache/a2.jpg"))

	item, err := d.GetMediaByPath(ctx, "/photos/a.jpg")
	require.NoError(t, err)
	assert.True(t, item.Favorite)
	assert.Equal(t, int64(200), item.MTime)
	assert.Equal(t, "/cache/a2.jpg", item.ThumbPath)

	n, err := d.CountMedia(ctx, MediaFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "upsert must not duplicate the row")
}

func TestCountAndPageAgree(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	for i := 0; i < 7; i++ {
		path := fmt.Sprintf("/photos/img%d.jpg", i)
		require.NoError(t, d.UpsertMedia(ctx, path, mediatypes.KindImage, int64(100+i), 1, ""))
	}
	require.NoError(t, d.UpsertMedia(ctx, "/videos/clip.mp4", mediatypes.KindVideo, 500, 1, ""))
	require.NoError(t, d.SetFavorite(ctx, "/photos/img3.jpg", true))

	tests := []struct {
		name   string
		filter MediaFilter
		want   int
	}{
		{"all", MediaFilter{}, 8},
		{"images", MediaFilter{Kind: mediatypes.KindImage}, 7},
		{"videos", MediaFilter{Kind: mediatypes.KindVideo}, 1},
		{"favorites", MediaFilter{FavoritesOnly: true}, 1},
		{"search", MediaFilter{Search: "img"}, 7},
		{"no match", MediaFilter{Search: "raw"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := d.CountMedia(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)

			items, err := d.FetchMediaPage(ctx, 0, 100, tt.filter, "")
			require.NoError(t, err)
			assert.Len(t, items, tt.want, "page size must agree with count")
		})
	}
}

func TestSearchIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	require.NoError(t, d.UpsertMedia(ctx, "/photos/Wedding/a.jpg", mediatypes.KindImage, 100, 1, ""))

	n, err := d.CountMedia(ctx, MediaFilter{Search: "Wedding"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = d.CountMedia(ctx, MediaFilter{Search: "wedding"})
	require.NoError(t, err)
	assert.Equal(t, 0, n, "substring search must not fold case")
}

func TestFetchMediaPageOrdering(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	require.NoError(t, d.UpsertMedia(ctx, "/photos/old.jpg", mediatypes.KindImage, 100, 1, ""))
	require.NoError(t, d.UpsertMedia(ctx, "/photos/new.jpg", mediatypes.KindImage, 300, 1, ""))
	require.NoError(t, d.UpsertMedia(ctx, "/photos/mid.jpg", mediatypes.KindImage, 200, 1, ""))

	items, err := d.FetchMediaPage(ctx, 0, 10, MediaFilter{}, "")
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "/photos/new.jpg", items[0].Path, "default order is newest first")
	assert.Equal(t, "/photos/old.jpg", items[2].Path)

	items, err = d.FetchMediaPage(ctx, 1, 1, MediaFilter{}, "mtime ASC")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "/photos/mid.jpg", items[0].Path)

	// Unknown order clauses fall back to the default instead of erroring.
	items, err = d.FetchMediaPage(ctx, 0, 10, MediaFilter{}, "mtime; DROP TABLE media")
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestSetFavoritePublishesEvent(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)
	addTestMedia(t, d, "/photos/a.jpg", 100)

	bus := events.NewBus()
	d.SetEventBus(bus)
	ch := bus.Subscribe()

	require.NoError(t, d.SetFavorite(ctx, "/photos/a.jpg", true))

	select {
	case ev := <-ch:
		assert.Equal(t, events.FavoriteChanged, ev.Type)
		assert.Equal(t, "/photos/a.jpg", ev.Path)
		assert.True(t, ev.Favorite)
	default:
		t.Fatal("expected a FavoriteChanged event")
	}

	// Favoriting a path that is not indexed publishes nothing.
	require.NoError(t, d.SetFavorite(ctx, "/photos/missing.jpg", true))
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	default:
	}
}

func TestDeleteMediaCascades(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	id := addTestMedia(t, d, "/photos/a.jpg", 100)
	faceID, err := d.AddFace(ctx, id, BBox{X: 1, Y: 1, W: 10, H: 10}, nil, 0.9, "")
	require.NoError(t, err)
	require.NotZero(t, faceID)
	require.NoError(t, d.MarkMediaScanned(ctx, id, 100))

	require.NoError(t, d.DeleteMedia(ctx, "/photos/a.jpg"))

	counts, err := d.TableCounts(ctx)
	require.NoError(t, err)
	assert.Zero(t, counts["media"])
	assert.Zero(t, counts["faces"], "faces cascade with their media")
	assert.Zero(t, counts["face_scan_state"], "scan state cascades with its media")
}
