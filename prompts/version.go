package prompts

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
)

const (
	// VersionLatest always resolves to the most recently deployed revision
	// within the configured major version.
	VersionLatest = "latest"

	// VersionUndeployed is the sentinel major version for a prompt that has
	// never been deployed. Managers pinned to it always track the latest
	// development revision.
	VersionUndeployed = "undeployed"
)

// WeightedVersion pairs a minor version with a positive selection weight.
type WeightedVersion struct {
	Version string
	Weight  float64
}

// VersionSelector names the minor version(s) a manager serves: either one
// fixed version or a weighted set sampled per Exec call. Construct with
// FixedVersion or WeightedVersions; the zero value is invalid.
type VersionSelector struct {
	fixed    string
	weighted []WeightedVersion
}

// FixedVersion selects a single minor version on every call.
func FixedVersion(version string) VersionSelector {
	return VersionSelector{fixed: version}
}

// WeightedVersions selects among the given versions, each call drawing one
// version with probability proportional to its weight.
func WeightedVersions(versions ...WeightedVersion) VersionSelector {
	return VersionSelector{weighted: append([]WeightedVersion(nil), versions...)}
}

func (s VersionSelector) validate() error {
	if s.fixed != "" {
		return nil
	}
	if len(s.weighted) == 0 {
		return errors.New("prompts: version selector is empty")
	}
	for _, wv := range s.weighted {
		if wv.Version == "" {
			return errors.New("prompts: weighted version with empty version")
		}
		if wv.Weight <= 0 {
			return fmt.Errorf("prompts: weight for version %q must be > 0 (got %v)", wv.Version, wv.Weight)
		}
	}
	return nil
}

// versions returns the distinct set of minor versions the selector can
// produce, sorted for deterministic fetch order.
func (s VersionSelector) versions() []string {
	seen := make(map[string]struct{})
	var out []string
	if s.fixed != "" {
		return []string{s.fixed}
	}
	for _, wv := range s.weighted {
		if _, ok := seen[wv.Version]; ok {
			continue
		}
		seen[wv.Version] = struct{}{}
		out = append(out, wv.Version)
	}
	sort.Strings(out)
	return out
}

// sample draws one version. Weighted selectors use a single random draw
// proportional to weight; fixed selectors are deterministic.
func (s VersionSelector) sample() string {
	if s.fixed != "" {
		return s.fixed
	}

	var total float64
	for _, wv := range s.weighted {
		total += wv.Weight
	}

	r := rand.Float64() * total
	for _, wv := range s.weighted {
		r -= wv.Weight
		if r < 0 {
			return wv.Version
		}
	}
	// Guard against floating point drift on the final bucket.
	return s.weighted[len(s.weighted)-1].Version
}

func (s VersionSelector) contains(version string) bool {
	for _, v := range s.versions() {
		if v == version {
			return true
		}
	}
	return false
}
