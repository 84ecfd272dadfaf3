package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func suggestionState(t *testing.T, d *Database, faceID, personID int64) string {
	t.Helper()
	var state string
	err := d.db.QueryRow(
		"SELECT state FROM face_suggestions WHERE face_id = ? AND person_id = ?",
		faceID, personID).Scan(&state)
	require.NoError(t, err)
	return state
}

func faceOwner(t *testing.T, d *Database, faceID int64) int64 {
	t.Helper()
	var owner int64
	err := d.db.QueryRow("SELECT person_id FROM person_face WHERE face_id = ?", faceID).Scan(&owner)
	require.NoError(t, err)
	return owner
}

func TestPersonLifecycle(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	id, err := d.CreatePerson(ctx, "Alice", false, "", "a1b2c3d4e5f60708")
	require.NoError(t, err)
	require.NotZero(t, id)

	require.NoError(t, d.SetPersonName(ctx, id, "Alice B."))
	require.NoError(t, d.AddAlias(ctx, id, "Ally"))
	require.NoError(t, d.AddAlias(ctx, id, "Ally")) // duplicate ignored
	require.NoError(t, d.SetIsPet(ctx, id, false))
	require.NoError(t, d.SetPersonCover(ctx, id, "/cache/people/alice.jpg"))

	p, err := d.GetPerson(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Alice B.", p.DisplayName)
	assert.Equal(t, "/cache/people/alice.jpg", p.CoverPath)
	assert.Equal(t, "a1b2c3d4e5f60708", p.RepSig)

	require.NoError(t, d.DeletePerson(ctx, id))
	p, err = d.GetPerson(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestListPersonsFiltersPets(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	_, err := d.CreatePerson(ctx, "Alice", false, "", "")
	require.NoError(t, err)
	_, err = d.CreatePerson(ctx, "Rex", true, "", "")
	require.NoError(t, err)

	persons, err := d.ListPersons(ctx, false)
	require.NoError(t, err)
	require.Len(t, persons, 1)
	assert.Equal(t, "Alice", persons[0].DisplayName)

	persons, err = d.ListPersons(ctx, true)
	require.NoError(t, err)
	assert.Len(t, persons, 2)
}

func TestAcceptSuggestionSettlesRivals(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	mediaID := addTestMedia(t, d, "/pics/group.jpg", 100)
	faceID, err := d.AddFace(ctx, mediaID, BBox{X: 10, Y: 10, W: 50, H: 50}, nil, 0.8, "")
	require.NoError(t, err)

	alice, err := d.CreatePerson(ctx, "Alice", false, "", "")
	require.NoError(t, err)
	bob, err := d.CreatePerson(ctx, "Bob", false, "", "")
	require.NoError(t, err)

	score := 0.91
	require.NoError(t, d.AddSuggestion(ctx, faceID, alice, &score))
	require.NoError(t, d.AddSuggestion(ctx, faceID, bob, nil))

	require.NoError(t, d.AcceptSuggestion(ctx, faceID, alice))

	assert.Equal(t, "accepted", suggestionState(t, d, faceID, alice))
	assert.Equal(t, "rejected", suggestionState(t, d, faceID, bob), "rival pairs settle as rejected")
	assert.Equal(t, alice, faceOwner(t, d, faceID))
}

func TestAcceptMovesAssignment(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	mediaID := addTestMedia(t, d, "/pics/group.jpg", 100)
	faceID, err := d.AddFace(ctx, mediaID, BBox{X: 10, Y: 10, W: 50, H: 50}, nil, 0.8, "")
	require.NoError(t, err)

	alice, err := d.CreatePerson(ctx, "Alice", false, "", "")
	require.NoError(t, err)
	bob, err := d.CreatePerson(ctx, "Bob", false, "", "")
	require.NoError(t, err)

	require.NoError(t, d.AddSuggestion(ctx, faceID, alice, nil))
	require.NoError(t, d.AcceptSuggestion(ctx, faceID, alice))

	// Operator corrects the mistake: the single owner slot moves.
	require.NoError(t, d.AddSuggestion(ctx, faceID, bob, nil))
	require.NoError(t, d.AcceptSuggestion(ctx, faceID, bob))

	assert.Equal(t, bob, faceOwner(t, d, faceID))
	assert.Equal(t, "rejected", suggestionState(t, d, faceID, alice))
	assert.Equal(t, "accepted", suggestionState(t, d, faceID, bob))
}

func TestRejectedSuggestionReopens(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	mediaID := addTestMedia(t, d, "/pics/a.jpg", 100)
	faceID, err := d.AddFace(ctx, mediaID, BBox{W: 10, H: 10}, nil, 0.5, "")
	require.NoError(t, err)
	alice, err := d.CreatePerson(ctx, "Alice", false, "", "")
	require.NoError(t, err)

	require.NoError(t, d.AddSuggestion(ctx, faceID, alice, nil))
	require.NoError(t, d.RejectSuggestion(ctx, faceID, alice))
	assert.Equal(t, "rejected", suggestionState(t, d, faceID, alice))

	// A later detector pass proposing the same pair reopens it.
	require.NoError(t, d.AddSuggestion(ctx, faceID, alice, nil))
	assert.Equal(t, "pending", suggestionState(t, d, faceID, alice))
}

func TestAddSuggestionKeepsAcceptedState(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	mediaID := addTestMedia(t, d, "/pics/a.jpg", 100)
	faceID, err := d.AddFace(ctx, mediaID, BBox{W: 10, H: 10}, nil, 0.5, "")
	require.NoError(t, err)
	alice, err := d.CreatePerson(ctx, "Alice", false, "", "")
	require.NoError(t, err)

	require.NoError(t, d.AddSuggestion(ctx, faceID, alice, nil))
	require.NoError(t, d.AcceptSuggestion(ctx, faceID, alice))

	require.NoError(t, d.AddSuggestion(ctx, faceID, alice, nil))
	assert.Equal(t, "accepted", suggestionState(t, d, faceID, alice),
		"re-proposing an accepted pair must not demote it")
}

func TestListPersonSuggestionsOrder(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	mediaID := addTestMedia(t, d, "/pics/a.jpg", 100)
	alice, err := d.CreatePerson(ctx, "Alice", false, "", "")
	require.NoError(t, err)

	lowFace, err := d.AddFace(ctx, mediaID, BBox{W: 10, H: 10}, nil, 0.5, "")
	require.NoError(t, err)
	highFace, err := d.AddFace(ctx, mediaID, BBox{X: 60, W: 10, H: 10}, nil, 0.9, "")
	require.NoError(t, err)
	hiddenFace, err := d.AddFace(ctx, mediaID, BBox{X: 120, W: 10, H: 10}, nil, 0.9, "")
	require.NoError(t, err)
	require.NoError(t, d.HideFace(ctx, hiddenFace, true))

	low, high := 0.4, 0.95
	require.NoError(t, d.AddSuggestion(ctx, lowFace, alice, &low))
	require.NoError(t, d.AddSuggestion(ctx, highFace, alice, &high))
	require.NoError(t, d.AddSuggestion(ctx, hiddenFace, alice, &high))

	items, err := d.ListPersonSuggestions(ctx, alice, 10)
	require.NoError(t, err)
	require.Len(t, items, 2, "hidden faces are excluded")
	assert.Equal(t, highFace, items[0].FaceID, "best score first")
	assert.Equal(t, lowFace, items[1].FaceID)

	persons, err := d.ListPersons(ctx, true)
	require.NoError(t, err)
	require.Len(t, persons, 1)
	assert.Equal(t, 3, persons[0].SuggestionsCount, "pending count includes hidden faces")
}

func TestListPersonMedia(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	oldMedia := addTestMedia(t, d, "/pics/old.jpg", 100)
	newMedia := addTestMedia(t, d, "/pics/new.jpg", 200)
	alice, err := d.CreatePerson(ctx, "Alice", false, "", "")
	require.NoError(t, err)

	for _, mediaID := range []int64{oldMedia, newMedia} {
		faceID, err := d.AddFace(ctx, mediaID, BBox{W: 10, H: 10}, nil, 0.5, "")
		require.NoError(t, err)
		require.NoError(t, d.AddSuggestion(ctx, faceID, alice, nil))
		require.NoError(t, d.AcceptSuggestion(ctx, faceID, alice))
	}

	items, err := d.ListPersonMedia(ctx, alice, 10, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "/pics/new.jpg", items[0].Path, "newest first")
}

func TestFindSimilarPerson(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	alice, err := d.CreatePerson(ctx, "Alice", false, "", "00000000000000ff")
	require.NoError(t, err)
	_, err = d.CreatePerson(ctx, "Bob", false, "", "ffffffffffffff00")
	require.NoError(t, err)
	_, err = d.CreatePerson(ctx, "No Sig", false, "", "")
	require.NoError(t, err)

	// Two bits away from Alice, far from Bob.
	id, err := d.FindSimilarPerson(ctx, 0x00000000000000fc, 8)
	require.NoError(t, err)
	assert.Equal(t, alice, id)

	// Nobody within one bit.
	id, err = d.FindSimilarPerson(ctx, 0x00000000000000fc, 1)
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestBestFaceForPerson(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	mediaID := addTestMedia(t, d, "/pics/a.jpg", 100)
	alice, err := d.CreatePerson(ctx, "Alice", false, "", "")
	require.NoError(t, err)

	blurry, err := d.AddFace(ctx, mediaID, BBox{W: 10, H: 10}, nil, 0.2, "")
	require.NoError(t, err)
	sharp, err := d.AddFace(ctx, mediaID, BBox{X: 60, W: 10, H: 10}, nil, 0.9, "")
	require.NoError(t, err)
	for _, faceID := range []int64{blurry, sharp} {
		require.NoError(t, d.AddSuggestion(ctx, faceID, alice, nil))
		require.NoError(t, d.AcceptSuggestion(ctx, faceID, alice))
	}

	best, err := d.BestFaceForPerson(ctx, alice)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.Equal(t, sharp, best.ID)

	empty, err := d.CreatePerson(ctx, "Nobody", false, "", "")
	require.NoError(t, err)
	best, err = d.BestFaceForPerson(ctx, empty)
	require.NoError(t, err)
	assert.Nil(t, best)
}
