// Package version normalizes package version strings so that equivalent
// spellings ("1.0", "1.0.0", "1.0.0.0") index and compare as one value.
package version

import (
	"fmt"
	"strconv"
	"strings"

	goversion "github.com/hashicorp/go-version"
)

// Parsed is a validated package version.
type Parsed struct {
	v *goversion.Version
}

// Parse accepts 1 to 4 numeric segments with optional prerelease and build
// metadata.
func Parse(raw string) (Parsed, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Parsed{}, fmt.Errorf("empty version")
	}
	if strings.HasPrefix(s, "v") || strings.HasPrefix(s, "V") {
		return Parsed{}, fmt.Errorf("invalid version %q: leading v", raw)
	}
	v, err := goversion.NewVersion(s)
	if err != nil {
		return Parsed{}, fmt.Errorf("invalid version %q: %w", raw, err)
	}
	if n := len(v.Segments()); n > 4 {
		return Parsed{}, fmt.Errorf("invalid version %q: %d numeric segments", raw, n)
	}
	return Parsed{v: v}, nil
}

// Normalized renders major.minor.patch[.revision][-prerelease]. A zero
// revision is dropped and build metadata is never included.
func (p Parsed) Normalized() string {
	segs := p.v.Segments()
	for len(segs) < 3 {
		segs = append(segs, 0)
	}
	if len(segs) == 4 && segs[3] == 0 {
		segs = segs[:3]
	}
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = strconv.Itoa(s)
	}
	out := strings.Join(parts, ".")
	if pre := p.v.Prerelease(); pre != "" {
		out += "-" + pre
	}
	return out
}

func (p Parsed) IsPrerelease() bool {
	return p.v.Prerelease() != ""
}

// IsSemVer2 reports a dotted prerelease label or build metadata, which older
// clients cannot consume.
func (p Parsed) IsSemVer2() bool {
	return strings.Contains(p.v.Prerelease(), ".") || p.v.Metadata() != ""
}

// Compare orders versions with prereleases before their release.
func (p Parsed) Compare(other Parsed) int {
	return p.v.Compare(other.v)
}

// Normalize parses raw and returns its normalized form.
func Normalize(raw string) (string, error) {
	p, err := Parse(raw)
	if err != nil {
		return "", err
	}
	return p.Normalized(), nil
}

// Key is the case-insensitive lookup form of a version, falling back to the
// lower-cased input when it does not parse.
func Key(raw string) string {
	if n, err := Normalize(raw); err == nil {
		return strings.ToLower(n)
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

// Compare orders two raw version strings. Unparsable versions sort first,
// then by case-insensitive text.
func Compare(a, b string) int {
	pa, errA := Parse(a)
	pb, errB := Parse(b)
	switch {
	case errA != nil && errB != nil:
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	default:
		return pa.Compare(pb)
	}
}
