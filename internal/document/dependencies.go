package document

import (
	"encoding/json"
	"strings"
)

// Dependency is one entry of a package's dependency list. An empty Id marks
// a framework group without package dependencies.
type Dependency struct {
	ID              string `json:"Id"`
	VersionSpec     string `json:"VersionSpec,omitempty"`
	TargetFramework string `json:"TargetFramework,omitempty"`
}

// FlattenDependencies renders deps as id:range:framework entries joined by
// '|'. Trailing empty parts are omitted.
func FlattenDependencies(deps []Dependency) string {
	parts := make([]string, 0, len(deps))
	for _, d := range deps {
		s := d.ID + ":" + d.VersionSpec
		if d.TargetFramework != "" {
			s += ":" + d.TargetFramework
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, "|")
}

// ParseDependencies reverses FlattenDependencies.
func ParseDependencies(flattened string) []Dependency {
	if strings.TrimSpace(flattened) == "" {
		return nil
	}
	entries := strings.Split(flattened, "|")
	deps := make([]Dependency, 0, len(entries))
	for _, entry := range entries {
		fields := strings.Split(entry, ":")
		d := Dependency{ID: fields[0]}
		if len(fields) > 1 {
			d.VersionSpec = fields[1]
		}
		if len(fields) > 2 {
			d.TargetFramework = fields[2]
		}
		deps = append(deps, d)
	}
	return deps
}

// DependenciesJSON materializes the flattened form as a JSON array.
func DependenciesJSON(flattened string) (string, error) {
	deps := ParseDependencies(flattened)
	if deps == nil {
		deps = []Dependency{}
	}
	b, err := json.Marshal(deps)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// PackageType is one entry of a package's type list, e.g. Dependency:1.0.0.
type PackageType struct {
	Name    string `json:"Name"`
	Version string `json:"Version,omitempty"`
}

func ParsePackageTypes(flattened string) []PackageType {
	if strings.TrimSpace(flattened) == "" {
		return nil
	}
	entries := strings.Split(flattened, "|")
	types := make([]PackageType, 0, len(entries))
	for _, entry := range entries {
		name, ver, _ := strings.Cut(entry, ":")
		if name == "" {
			continue
		}
		types = append(types, PackageType{Name: name, Version: ver})
	}
	return types
}

func PackageTypesJSON(flattened string) (string, error) {
	types := ParsePackageTypes(flattened)
	if types == nil {
		types = []PackageType{}
	}
	b, err := json.Marshal(types)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
