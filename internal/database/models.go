package database

import "media-catalog/internal/mediatypes"

// MediaItem is one indexed image or video.
type MediaItem struct {
	ID        int64           `json:"id"`
	Path      string          `json:"path"`
	Kind      mediatypes.Kind `json:"kind"`
	MTime     int64           `json:"mtime"`
	Size      int64           `json:"size"`
	ThumbPath string          `json:"thumbPath,omitempty"`
	Favorite  bool            `json:"favorite"`
}

// Album is a folder-derived (or manually created) media collection.
// FolderKey is the reconciliation identity: the normalized relative
// directory path shared by the album's media. Albums without an inferable
// folder identity keep an empty FolderKey and are exempt from merge logic.
type Album struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	CoverPath string `json:"coverPath,omitempty"`
	FolderKey string `json:"folderKey,omitempty"`
	Count     int    `json:"count"`
}

// Person is a face cluster, optionally named by the operator.
type Person struct {
	ID               int64  `json:"id"`
	DisplayName      string `json:"displayName,omitempty"`
	IsPet            bool   `json:"isPet"`
	CoverPath        string `json:"coverPath,omitempty"`
	RepSig           string `json:"-"`
	CreatedAt        int64  `json:"createdAt"`
	UpdatedAt        int64  `json:"updatedAt"`
	SuggestionsCount int    `json:"suggestionsCount"`
}

// BBox is a face bounding box in source-image pixel space. Coordinates in
// the [0,2] range are treated as normalized to the image dimensions when
// cropping, matching what detectors commonly emit.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Face is one detected face inside a media item.
type Face struct {
	ID        int64   `json:"id"`
	MediaID   int64   `json:"mediaId"`
	Box       BBox    `json:"box"`
	Embedding []byte  `json:"-"`
	Quality   float64 `json:"quality,omitempty"`
	Sig       string  `json:"-"`
	IsHidden  bool    `json:"isHidden"`
	TS        int64   `json:"ts"`
}

// SuggestionState enumerates the face-suggestion state machine.
type SuggestionState string

const (
	// SuggestionPending awaits operator accept/reject.
	SuggestionPending SuggestionState = "pending"
	// SuggestionAccepted confirmed the face-to-person assignment.
	SuggestionAccepted SuggestionState = "accepted"
	// SuggestionRejected declined the assignment. A later detector pass may
	// re-open a rejected pairing back to pending.
	SuggestionRejected SuggestionState = "rejected"
)

// Suggestion is a proposed, unconfirmed face-to-person assignment.
type Suggestion struct {
	FaceID   int64           `json:"faceId"`
	PersonID int64           `json:"personId"`
	Score    float64         `json:"score,omitempty"`
	State    SuggestionState `json:"state"`
}

// PersonMediaRow is one confirmed media item for a person listing.
type PersonMediaRow struct {
	MediaID   int64  `json:"mediaId"`
	Path      string `json:"path"`
	ThumbPath string `json:"thumbPath,omitempty"`
	MTime     int64  `json:"mtime"`
}

// SuggestionRow is one pending suggestion for a person listing, with
// enough media context to render a review card.
type SuggestionRow struct {
	FaceID    int64    `json:"faceId"`
	PersonID  int64    `json:"personId"`
	Score     *float64 `json:"score,omitempty"`
	TS        int64    `json:"ts"`
	MediaID   int64    `json:"mediaId"`
	Box       BBox     `json:"box"`
	Path      string   `json:"path"`
	ThumbPath string   `json:"thumbPath,omitempty"`
}

// ScanCandidate is one media item due for face scanning.
type ScanCandidate struct {
	MediaID   int64  `json:"mediaId"`
	Path      string `json:"path"`
	ThumbPath string `json:"thumbPath,omitempty"`
	MTime     int64  `json:"mtime"`
}
