package storage

import "testing"

func TestLayoutKeys(t *testing.T) {
	layout := Layout{Staging: "staging/", Review: "review/", Gallery: "galleries/"}

	if got := layout.StagedKey("shoot-01/IMG_0001.CR2"); got != "staging/IMG_0001.CR2" {
		t.Fatalf("StagedKey = %q", got)
	}
	if got := layout.ReviewKey("job-1", "IMG_0001.jpg"); got != "review/job-1/IMG_0001.jpg" {
		t.Fatalf("ReviewKey = %q", got)
	}
	if got := layout.FinishedKey("gal-1", "IMG_0001.jpg"); got != "galleries/gal-1/finished/IMG_0001.jpg" {
		t.Fatalf("FinishedKey = %q", got)
	}
	// Keys from the remote service may come back as paths; only the basename
	// survives.
	if got := layout.FinishedKey("gal-1", "exports/IMG_0001.jpg"); got != "galleries/gal-1/finished/IMG_0001.jpg" {
		t.Fatalf("FinishedKey with path = %q", got)
	}
}

func TestEnsureSlash(t *testing.T) {
	if got := ensureSlash("review"); got != "review/" {
		t.Fatalf("ensureSlash(review) = %q", got)
	}
	if got := ensureSlash("review/"); got != "review/" {
		t.Fatalf("ensureSlash(review/) = %q", got)
	}
	if got := ensureSlash(""); got != "" {
		t.Fatalf("ensureSlash(empty) = %q", got)
	}
}

func TestContentTypeFor(t *testing.T) {
	if got := ContentTypeFor("galleries/g/finished/a.jpg"); got != "image/jpeg" {
		t.Fatalf("jpg content type = %q", got)
	}
	if got := ContentTypeFor("staging/a.cr2"); got != "application/octet-stream" {
		t.Fatalf("cr2 content type = %q", got)
	}
}
