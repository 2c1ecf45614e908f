package generation

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/auxiliary"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/version"
)

// Doc is one live document as seen during a build. Its stored fields are
// decoded once and shared by every handler.
type Doc struct {
	ID    uint32
	Ord   int
	Local uint32

	Fields     index.StoredFields
	PackageID  string
	Key        string
	Version    string
	Listed     bool
	Prerelease bool

	parsed   version.Parsed
	parsedOK bool
}

func decodeDoc(leaf *indexer.Leaf, local uint32, fields index.StoredFields) *Doc {
	d := &Doc{
		ID:         leaf.Base + local,
		Ord:        leaf.Ord,
		Local:      local,
		Fields:     fields,
		PackageID:  fields.Get(document.FieldID),
		Version:    fields.Get(document.FieldVersion),
		Listed:     fields.Get(document.FieldListed) != "false",
		Prerelease: fields.Get(document.FieldPrerelease) == "true",
	}
	d.Key = strings.ToLower(d.PackageID)
	if p, err := version.Parse(d.Version); err == nil {
		d.parsed, d.parsedOK = p, true
	}
	return d
}

// compareVersions orders two docs of the same package by version.
func compareVersions(a, b *Doc) int {
	if a.parsedOK && b.parsedOK {
		return a.parsed.Compare(b.parsed)
	}
	return version.Compare(a.Version, b.Version)
}

// Handler derives one structure from a single pass over a reader. Begin is
// called once before the first Visit and End once after the last; an error
// from any call aborts the build.
type Handler interface {
	Name() string
	Begin(r *indexer.DirectoryReader, snap *auxiliary.Snapshot) error
	Visit(doc *Doc) error
	End() error
}
