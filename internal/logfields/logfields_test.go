package logfields

import (
	"errors"
	"log/slog"
	"testing"
	"time"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    slog.Attr
	}{
		{"RunID", KeyRunID, "r1", RunID("r1")},
		{"Site", KeySite, "Sales", Site("Sales")},
		{"SiteURL", KeySiteURL, "sales", SiteURL("sales")},
		{"Project", KeyProject, "Finance", Project("Finance")},
		{"ArtifactID", KeyArtifactID, "123", ArtifactID("123")},
		{"ArtifactKind", KeyArtifactKind, "workbook", ArtifactKind("workbook")},
		{"ArtifactName", KeyArtifactName, "Q1", ArtifactName("Q1")},
		{"Operation", KeyOperation, "download", Operation("download")},
		{"Path", KeyPath, "/tmp/x", Path("/tmp/x")},
		{"URL", KeyURL, "http://example", URL("http://example")},
		{"User", KeyUser, "admin", User("admin")},
		{"Commit", KeyCommit, "abc", Commit("abc")},
		{"Remote", KeyRemote, "origin", Remote("origin")},
	}

	for _, tc := range cases {
		if tc.attr.Key != tc.attrKey {
			// Key drift would break log ingestion schemas.
			t.Fatalf("%s: expected key %s, got %s", tc.name, tc.attrKey, tc.attr.Key)
		}
		if tc.attr.Value.String() != tc.attrVal {
			t.Fatalf("%s: expected value %s, got %s", tc.name, tc.attrVal, tc.attr.Value.String())
		}
	}
}

func TestTypedHelpers(t *testing.T) {
	if a := Page(3); a.Key != KeyPage || a.Value.Int64() != 3 {
		t.Fatalf("Page helper produced %v", a)
	}
	if a := Duration(1500 * time.Millisecond); a.Value.Int64() != 1500 {
		t.Fatalf("Duration helper produced %v", a)
	}
	w := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	if a := Window(w); a.Value.String() != "2024-01-02T02:04:05Z" {
		t.Fatalf("Window helper produced %v", a)
	}
	if a := Error(nil); a.Value.String() != "" {
		t.Fatalf("Error(nil) produced %v", a)
	}
	if a := Error(errors.New("boom")); a.Value.String() != "boom" {
		t.Fatalf("Error helper produced %v", a)
	}
}
