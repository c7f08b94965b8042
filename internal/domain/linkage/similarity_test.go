package linkage

import (
	"math"
	"testing"

	"github.com/mpi/mpi/internal/domain/algorithm"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestJaroWinkler_Identical(t *testing.T) {
	if got := JaroWinkler("Shepard", "Shepard"); got != 1.0 {
		t.Errorf("JaroWinkler identical = %v, want 1.0", got)
	}
}

func TestJaroWinkler_CaseInsensitive(t *testing.T) {
	if got := JaroWinkler("SHEPARD", "shepard"); got != 1.0 {
		t.Errorf("JaroWinkler case-insensitive = %v, want 1.0", got)
	}
}

func TestJaroWinkler_KnownValues(t *testing.T) {
	tests := []struct {
		s1, s2 string
		want   float64
	}{
		{"shepard", "shepherd", 0.9214285714285714},
		{"martha", "marhta", 0.9611111111111111},
		{"dixon", "dicksonx", 0.8133333333333334},
	}
	for _, tt := range tests {
		if got := JaroWinkler(tt.s1, tt.s2); !almostEqual(got, tt.want) {
			t.Errorf("JaroWinkler(%q, %q) = %v, want %v", tt.s1, tt.s2, got, tt.want)
		}
	}
}

func TestJaroWinkler_Empty(t *testing.T) {
	if got := JaroWinkler("", "Shepard"); got != 0.0 {
		t.Errorf("JaroWinkler(empty, s) = %v, want 0.0", got)
	}
	if got := JaroWinkler("Shepard", ""); got != 0.0 {
		t.Errorf("JaroWinkler(s, empty) = %v, want 0.0", got)
	}
	if got := JaroWinkler("", ""); got != 0.0 {
		t.Errorf("JaroWinkler(empty, empty) = %v, want 0.0", got)
	}
}

func TestJaroWinkler_NoCommonCharacters(t *testing.T) {
	if got := JaroWinkler("abc", "xyz"); got != 0.0 {
		t.Errorf("JaroWinkler disjoint = %v, want 0.0", got)
	}
}

func TestLevenshteinSimilarity(t *testing.T) {
	tests := []struct {
		s1, s2 string
		want   float64
	}{
		{"kitten", "sitting", 1.0 - 3.0/7.0},
		{"Shepard", "shepard", 1.0},
		{"abc", "", 0.0},
		{"", "", 1.0},
		{"ca", "ac", 0.0},
	}
	for _, tt := range tests {
		if got := LevenshteinSimilarity(tt.s1, tt.s2); !almostEqual(got, tt.want) {
			t.Errorf("LevenshteinSimilarity(%q, %q) = %v, want %v", tt.s1, tt.s2, got, tt.want)
		}
	}
}

func TestDamerauLevenshteinSimilarity(t *testing.T) {
	tests := []struct {
		s1, s2 string
		want   float64
	}{
		// a transposition costs one edit, not two
		{"ca", "ac", 0.5},
		{"abcd", "acbd", 0.75},
		{"kitten", "sitting", 1.0 - 3.0/7.0},
		{"same", "same", 1.0},
	}
	for _, tt := range tests {
		if got := DamerauLevenshteinSimilarity(tt.s1, tt.s2); !almostEqual(got, tt.want) {
			t.Errorf("DamerauLevenshteinSimilarity(%q, %q) = %v, want %v", tt.s1, tt.s2, got, tt.want)
		}
	}
}

func TestSimilarityFor(t *testing.T) {
	jw := similarityFor(algorithm.MeasureJaroWinkler)("martha", "marhta")
	lev := similarityFor(algorithm.MeasureLevenshtein)("martha", "marhta")
	if !almostEqual(jw, 0.9611111111111111) {
		t.Errorf("JaroWinkler dispatch = %v, want 0.9611111111111111", jw)
	}
	if !almostEqual(lev, 1.0-2.0/6.0) {
		t.Errorf("Levenshtein dispatch = %v, want %v", lev, 1.0-2.0/6.0)
	}

	// unknown names fall back to JaroWinkler
	if got := similarityFor("NotAMeasure")("martha", "marhta"); !almostEqual(got, jw) {
		t.Errorf("unknown measure dispatch = %v, want JaroWinkler value %v", got, jw)
	}
}
