package ui

import "testing"

func TestSparklineEmptyAndZeroWidth(t *testing.T) {
	if got := Sparkline(nil, 10); got != "" {
		t.Fatalf("expected empty sparkline for nil values, got %q", got)
	}
	if got := Sparkline([]float64{1, 2}, 0); got != "" {
		t.Fatalf("expected empty sparkline for zero width, got %q", got)
	}
}

func TestSparklineMapsRangeToBlocks(t *testing.T) {
	got := []rune(Sparkline([]float64{0, 50, 100}, 10))
	if len(got) != 3 {
		t.Fatalf("expected 3 blocks, got %d (%q)", len(got), string(got))
	}
	if got[0] != '▁' {
		t.Fatalf("expected minimum to map to lowest block, got %q", got[0])
	}
	if got[2] != '█' {
		t.Fatalf("expected maximum to map to highest block, got %q", got[2])
	}
}

func TestSparklineFlatSeriesUsesMiddleLevel(t *testing.T) {
	got := []rune(Sparkline([]float64{42, 42, 42}, 10))
	if len(got) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(got))
	}
	for _, r := range got {
		if r != '▅' {
			t.Fatalf("expected flat series at middle level, got %q", string(got))
		}
	}
}

func TestSparklineKeepsMostRecentWidth(t *testing.T) {
	values := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	got := []rune(Sparkline(values, 5))
	if len(got) != 5 {
		t.Fatalf("expected 5 blocks, got %d", len(got))
	}
	if got[4] != '█' {
		t.Fatalf("expected newest value to be window maximum, got %q", string(got))
	}
}

func TestSparklineHandlesNegativeValues(t *testing.T) {
	got := []rune(Sparkline([]float64{-50, 0, 50}, 10))
	if len(got) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(got))
	}
	if got[0] != '▁' || got[2] != '█' {
		t.Fatalf("expected range normalization over negatives, got %q", string(got))
	}
}
