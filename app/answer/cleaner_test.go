package answer

import (
	"testing"
)

func TestClean_DropsReferencesSection(t *testing.T) {
	got := Clean("Hello\nScience papers:\nSmith 2020.01.01\n10.1234/x")
	if got != "Hello" {
		t.Errorf("Expected 'Hello', got %q", got)
	}
}

func TestClean_NoMarkerUnchanged(t *testing.T) {
	input := "Hello\n\nMore content"
	if got := Clean(input); got != input {
		t.Errorf("Expected input unchanged, got %q", got)
	}
}

func TestClean_TrailingNonCitationIsKept(t *testing.T) {
	got := Clean("A\nScience papers:\nFoo Bar 1\n\nNot a citation line")
	if got != "A\nNot a citation line" {
		t.Errorf("Expected trailing prose to be kept, got %q", got)
	}
}

func TestClean_TrailingCitationIsDropped(t *testing.T) {
	got := Clean("A\nScience papers:\nFoo Bar 1\n\nJones et al. Nature 2019")
	if got != "A" {
		t.Errorf("Expected trailing citation to be dropped, got %q", got)
	}
}

func TestClean_MarkerIsCaseInsensitive(t *testing.T) {
	got := Clean("Answer text\nSCIENCE PAPERS:\nDoe 2018 Cell")
	if got != "Answer text" {
		t.Errorf("Expected 'Answer text', got %q", got)
	}
}

func TestClean_ResumesAfterSeveralBlankLines(t *testing.T) {
	input := "Intro\nScience papers:\nLee 2021-03-04 Science\n\n\n\nThanks for asking!"
	got := Clean(input)
	if got != "Intro\nThanks for asking!" {
		t.Errorf("Expected resume after blank lines, got %q", got)
	}
}

func TestClean_KeepsSkippingOverCitationBlocks(t *testing.T) {
	input := "Intro\nScience papers:\nLee 2021 Science\n\ndoi:10.1000/182\n\nNATURE 12\n\nBye"
	got := Clean(input)
	if got != "Intro\nBye" {
		t.Errorf("Expected only intro and closing line, got %q", got)
	}
}

func TestClean_OnlyReferencesYieldsEmpty(t *testing.T) {
	got := Clean("Science papers:\nSmith 2020\n\nBrown 2019")
	if got != "" {
		t.Errorf("Expected empty output, got %q", got)
	}
}

func TestClean_NormalizesCRLF(t *testing.T) {
	got := Clean("Hello\r\nScience papers:\r\nSmith 2020\r\n")
	if got != "Hello" {
		t.Errorf("Expected 'Hello', got %q", got)
	}
}

func TestIsCitation(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"Smith 2020.01.01", true},
		{"Jones, A. (1999) Journal of Things", true},
		{"see https://doi.org/10.1038/nature12373", true},
		{"DOI: something", true},
		{"PNAS 117", true},
		{"Foo Bar 1", false},
		{"Not a citation line", false},
		{"lowercase 2020 start", false},
	}

	for _, tt := range tests {
		if got := isCitation(tt.line); got != tt.want {
			t.Errorf("isCitation(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}
