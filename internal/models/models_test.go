package models

import "testing"

func TestParseVisibility(t *testing.T) {
	cases := []struct {
		in      string
		want    Visibility
		wantErr bool
	}{
		{"", VisibilityPrivate, false},
		{"private", VisibilityPrivate, false},
		{"  Public ", VisibilityPublic, false},
		{"SHARED", VisibilityShared, false},
		{"friends", "", true},
	}
	for _, tc := range cases {
		got, err := ParseVisibility(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseVisibility(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseVisibility(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseVisibility(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestValidateDisplayName(t *testing.T) {
	if err := ValidateDisplayName("report.pdf"); err != nil {
		t.Fatalf("valid name rejected: %v", err)
	}
	for _, bad := range []string{"", "   ", "a/b.txt", `a\b.txt`} {
		if err := ValidateDisplayName(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestParseFolderName(t *testing.T) {
	name, err := ParseFolderName("  Projects ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if name != "Projects" {
		t.Fatalf("expected trimmed name, got %q", name)
	}
	for _, bad := range []string{"", "a/b", `a\b`} {
		if _, err := ParseFolderName(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestNormalizeUsername(t *testing.T) {
	username, err := NormalizeUsername(" Alice ")
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if username != "alice" {
		t.Fatalf("expected alice, got %q", username)
	}
	for _, bad := range []string{"", "-alice", "al!ce", "a..", string(make([]byte, 40))} {
		if _, err := NormalizeUsername(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
