// Package frameworks classifies target framework monikers such as "net45",
// "netstandard2.0" or ".NETFramework,Version=v4.5" into a canonical short
// name. Monikers it cannot classify are reported as errors so callers can
// skip them.
package frameworks

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var ErrUnknownFramework = errors.New("unknown target framework")

// Framework is a classified target framework.
type Framework struct {
	Identifier string
	Version    []int
	Profile    string
}

type family struct {
	short string
	long  string
	// dotted families spell versions with dots ("netstandard2.0"); the rest
	// concatenate single digits ("net45").
	dotted bool
}

var families = []family{
	{short: "netstandard", long: ".NETStandard", dotted: true},
	{short: "netcoreapp", long: ".NETCoreApp", dotted: true},
	{short: "netcore", long: ".NETCore"},
	{short: "netmf", long: ".NETMicroFramework"},
	{short: "net", long: ".NETFramework"},
	{short: "uap", long: "UAP", dotted: true},
	{short: "wpa", long: "WindowsPhoneApp"},
	{short: "wp", long: "WindowsPhone"},
	{short: "win", long: "Windows"},
	{short: "sl", long: "Silverlight"},
	{short: "monoandroid", long: "MonoAndroid"},
	{short: "monotouch", long: "MonoTouch"},
	{short: "monomac", long: "MonoMac"},
	{short: "xamarinios", long: "Xamarin.iOS"},
	{short: "xamarinmac", long: "Xamarin.Mac"},
	{short: "xamarintvos", long: "Xamarin.TVOS"},
	{short: "xamarinwatchos", long: "Xamarin.WatchOS"},
	{short: "tizen", long: "Tizen"},
	{short: "dotnet", long: ".NETPlatform"},
}

var bareIdentifiers = map[string]string{
	"native":   "native",
	"any":      "any",
	"agnostic": "agnostic",
}

// byLongName lets ".NETFramework,Version=v4.5" style monikers resolve.
var byLongName = func() map[string]family {
	m := make(map[string]family, len(families))
	for _, f := range families {
		m[strings.ToLower(f.long)] = f
	}
	return m
}()

// shortFamilies is families ordered longest prefix first.
var shortFamilies = func() []family {
	out := append([]family(nil), families...)
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].short) > len(out[j].short) })
	return out
}()

// Parse classifies one moniker.
func Parse(moniker string) (Framework, error) {
	s := strings.ToLower(strings.TrimSpace(moniker))
	if s == "" {
		return Framework{}, fmt.Errorf("%w: empty", ErrUnknownFramework)
	}
	if id, ok := bareIdentifiers[s]; ok {
		return Framework{Identifier: id}, nil
	}
	if strings.HasPrefix(s, "portable-") || strings.HasPrefix(s, "portable40-") || strings.HasPrefix(s, "portable45-") {
		return parsePortable(s)
	}
	if strings.Contains(s, ",version=") {
		return parseLong(s)
	}
	return parseShort(s)
}

func parsePortable(s string) (Framework, error) {
	_, profile, _ := strings.Cut(s, "-")
	parts := strings.Split(profile, "+")
	normalized := make([]string, 0, len(parts))
	for _, p := range parts {
		f, err := parseShort(p)
		if err != nil {
			return Framework{}, fmt.Errorf("portable profile member %q: %w", p, err)
		}
		normalized = append(normalized, f.ShortName())
	}
	return Framework{Identifier: "portable", Profile: strings.Join(normalized, "+")}, nil
}

func parseLong(s string) (Framework, error) {
	name, rest, _ := strings.Cut(s, ",version=")
	fam, ok := byLongName[name]
	if !ok {
		return Framework{}, fmt.Errorf("%w: %q", ErrUnknownFramework, s)
	}
	ver, profile, _ := strings.Cut(rest, ",profile=")
	v, err := parseDotted(strings.TrimPrefix(ver, "v"))
	if err != nil {
		return Framework{}, fmt.Errorf("%w: %q: %v", ErrUnknownFramework, s, err)
	}
	return Framework{Identifier: modernize(fam.short, v), Version: v, Profile: profile}, nil
}

func parseShort(s string) (Framework, error) {
	for _, fam := range shortFamilies {
		if !strings.HasPrefix(s, fam.short) {
			continue
		}
		rest := s[len(fam.short):]
		ver, profile, _ := strings.Cut(rest, "-")
		if ver == "" {
			if rest != "" {
				break
			}
			return Framework{Identifier: fam.short}, nil
		}
		if ver[0] < '0' || ver[0] > '9' {
			continue
		}
		var v []int
		var err error
		if fam.dotted || strings.Contains(ver, ".") {
			v, err = parseDotted(ver)
		} else {
			v, err = parseCompact(ver)
		}
		if err != nil {
			return Framework{}, fmt.Errorf("%w: %q: %v", ErrUnknownFramework, s, err)
		}
		return Framework{Identifier: modernize(fam.short, v), Version: v, Profile: profile}, nil
	}
	return Framework{}, fmt.Errorf("%w: %q", ErrUnknownFramework, s)
}

// modernize maps net5.0 and later onto the dotted "net" family.
func modernize(short string, v []int) string {
	if short == "net" && len(v) > 0 && v[0] >= 5 {
		return "net.modern"
	}
	return short
}

func parseDotted(s string) ([]int, error) {
	parts := strings.Split(s, ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("bad version segment %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

func parseCompact(s string) ([]int, error) {
	out := make([]int, 0, len(s))
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("bad version %q", s)
		}
		out = append(out, int(r-'0'))
	}
	return out, nil
}

// ShortName renders the canonical moniker.
func (f Framework) ShortName() string {
	switch f.Identifier {
	case "portable":
		return "portable-" + f.Profile
	case "native", "any", "agnostic":
		return f.Identifier
	}
	var b strings.Builder
	dotted := f.Identifier == "net.modern"
	if dotted {
		b.WriteString("net")
	} else {
		b.WriteString(f.Identifier)
		for _, fam := range families {
			if fam.short == f.Identifier {
				dotted = fam.dotted
				break
			}
		}
	}
	v := trimZeros(f.Version, dotted)
	for i, n := range v {
		if dotted && i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(n))
	}
	if f.Profile != "" {
		b.WriteByte('-')
		b.WriteString(f.Profile)
	}
	return b.String()
}

func trimZeros(v []int, dotted bool) []int {
	const minLen = 2
	for len(v) > minLen && v[len(v)-1] == 0 {
		v = v[:len(v)-1]
	}
	if dotted && len(v) == 1 {
		v = append(append([]int(nil), v...), 0)
	}
	return v
}

// Classify parses a '|'-joined list of monikers. Unclassifiable entries are
// returned separately instead of failing the whole list.
func Classify(flattened string) (known []string, unknown []string) {
	if strings.TrimSpace(flattened) == "" {
		return nil, nil
	}
	seen := make(map[string]bool)
	for _, m := range strings.Split(flattened, "|") {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		f, err := Parse(m)
		if err != nil {
			unknown = append(unknown, m)
			continue
		}
		name := f.ShortName()
		if !seen[name] {
			seen[name] = true
			known = append(known, name)
		}
	}
	return known, unknown
}
