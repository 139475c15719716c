package prompts

import (
	"math"
	"testing"
)

func TestFixedVersionSelector(t *testing.T) {
	t.Parallel()

	s := FixedVersion("3")
	if err := s.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got := s.versions(); len(got) != 1 || got[0] != "3" {
		t.Fatalf("versions = %v, want [3]", got)
	}
	for i := 0; i < 10; i++ {
		if got := s.sample(); got != "3" {
			t.Fatalf("sample = %q, want 3", got)
		}
	}
}

func TestWeightedSelectorValidation(t *testing.T) {
	t.Parallel()

	if err := WeightedVersions().validate(); err == nil {
		t.Fatal("empty selector should be invalid")
	}
	if err := (VersionSelector{}).validate(); err == nil {
		t.Fatal("zero selector should be invalid")
	}

	bad := WeightedVersions(
		WeightedVersion{Version: "1", Weight: 1},
		WeightedVersion{Version: "2", Weight: 0},
	)
	if err := bad.validate(); err == nil {
		t.Fatal("zero weight should be invalid")
	}

	neg := WeightedVersions(WeightedVersion{Version: "1", Weight: -2})
	if err := neg.validate(); err == nil {
		t.Fatal("negative weight should be invalid")
	}
}

func TestWeightedSelectorDistinctVersions(t *testing.T) {
	t.Parallel()

	s := WeightedVersions(
		WeightedVersion{Version: "latest", Weight: 9},
		WeightedVersion{Version: "2", Weight: 1},
		WeightedVersion{Version: "latest", Weight: 1},
	)
	got := s.versions()
	if len(got) != 2 || got[0] != "2" || got[1] != "latest" {
		t.Fatalf("versions = %v, want [2 latest]", got)
	}
	if !s.contains("latest") || s.contains("3") {
		t.Fatal("contains is wrong")
	}
}

func TestWeightedSamplingFrequency(t *testing.T) {
	t.Parallel()

	s := WeightedVersions(
		WeightedVersion{Version: "1", Weight: 3},
		WeightedVersion{Version: "2", Weight: 1},
	)

	const draws = 2000
	counts := make(map[string]int)
	for i := 0; i < draws; i++ {
		counts[s.sample()]++
	}

	got := float64(counts["1"]) / draws
	if math.Abs(got-0.75) > 0.06 {
		t.Fatalf("version 1 frequency = %.3f, want 0.75 +/- 0.06 (counts: %v)", got, counts)
	}
	if counts["1"]+counts["2"] != draws {
		t.Fatalf("unexpected versions sampled: %v", counts)
	}
}
