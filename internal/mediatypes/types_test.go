package mediatypes

import "testing"

func TestKindForExt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ext      string
		expected Kind
	}{
		{".jpg", KindImage},
		{".JPG", KindImage},
		{".jpeg", KindImage},
		{".heic", KindImage},
		{".webp", KindImage},
		{".mp4", KindVideo},
		{".MOV", KindVideo},
		{".mkv", KindVideo},
		{".txt", KindOther},
		{".wpl", KindOther},
		{"", KindOther},
	}

	for _, tt := range tests {
		if got := KindForExt(tt.ext); got != tt.expected {
			t.Errorf("KindForExt(%q) = %q, want %q", tt.ext, got, tt.expected)
		}
	}
}

func TestKindForPath(t *testing.T) {
	t.Parallel()

	if got := KindForPath("/photos/trip/IMG_0001.JPG"); got != KindImage {
		t.Errorf("KindForPath image = %q, want %q", got, KindImage)
	}
	if got := KindForPath("/videos/clip.mp4"); got != KindVideo {
		t.Errorf("KindForPath video = %q, want %q", got, KindVideo)
	}
	if got := KindForPath("/docs/readme"); got != KindOther {
		t.Errorf("KindForPath other = %q, want %q", got, KindOther)
	}
}

func TestIsMediaFile(t *testing.T) {
	t.Parallel()

	if !IsMediaFile("/photos/shot.png") {
		t.Error("IsMediaFile(shot.png) should be true")
	}
	if IsMediaFile("/docs/report.pdf") {
		t.Error("IsMediaFile(report.pdf) should be false")
	}
}
