package service

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/generation"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/searcher/ranker"
)

// Hit is one package version as returned by the query API.
type Hit struct {
	ID                       string          `json:"id"`
	Version                  string          `json:"version"`
	OriginalVersion          string          `json:"originalVersion,omitempty"`
	Title                    string          `json:"title"`
	Description              string          `json:"description,omitempty"`
	Summary                  string          `json:"summary,omitempty"`
	Tags                     []string        `json:"tags"`
	Authors                  []string        `json:"authors"`
	Owners                   []string        `json:"owners"`
	IconURL                  string          `json:"iconUrl,omitempty"`
	ProjectURL               string          `json:"projectUrl,omitempty"`
	LicenseURL               string          `json:"licenseUrl,omitempty"`
	Listed                   bool            `json:"listed"`
	Prerelease               bool            `json:"prerelease"`
	RequireLicenseAcceptance bool            `json:"requireLicenseAcceptance"`
	Published                string          `json:"published,omitempty"`
	LastEdited               string          `json:"lastEdited,omitempty"`
	PackageSize              int64           `json:"packageSize,omitempty"`
	TotalDownloads           int             `json:"totalDownloads"`
	Versions                 []HitVersion    `json:"versions"`
	Dependencies             json.RawMessage `json:"dependencies,omitempty"`
	SupportedFrameworks      json.RawMessage `json:"supportedFrameworks,omitempty"`
	PackageTypes             json.RawMessage `json:"packageTypes,omitempty"`
	Score                    float64         `json:"score,omitempty"`
	Explanation              string          `json:"explanation,omitempty"`
}

type HitVersion struct {
	Version   string `json:"version"`
	Downloads int    `json:"downloads"`
}

// formatter materializes hits of one generation.
type formatter struct {
	g                 *generation.Generation
	s                 *query.Searcher
	includePrerelease bool
	includeUnlisted   bool
}

func (f *formatter) hits(top *query.TopDocs) ([]Hit, error) {
	out := make([]Hit, 0, len(top.Hits))
	for i, sd := range top.Hits {
		var explanation *ranker.Explanation
		if top.Explanations != nil {
			explanation = top.Explanations[i]
		}
		h, err := f.hit(sd, explanation)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func (f *formatter) hit(sd ranker.ScoredDoc, explanation *ranker.Explanation) (Hit, error) {
	fields, err := f.s.Document(sd.Doc)
	if err != nil {
		return Hit{}, err
	}
	h := Hit{
		ID:                       fields.Get(document.FieldID),
		Version:                  fields.Get(document.FieldVersion),
		OriginalVersion:          fields.Get(document.FieldOriginalVersion),
		Title:                    fields.Get(document.FieldTitle),
		Description:              fields.Get(document.FieldDescription),
		Summary:                  fields.Get(document.FieldSummary),
		Tags:                     splitList(fields.Get(document.FieldTags), " ,;"),
		Authors:                  splitList(fields.Get(document.FieldAuthors), ","),
		Owners:                   f.owners(sd.Doc),
		IconURL:                  fields.Get(document.FieldIconURL),
		ProjectURL:               fields.Get(document.FieldProjectURL),
		LicenseURL:               fields.Get(document.FieldLicenseURL),
		Listed:                   fields.Get(document.FieldListed) != "false",
		Prerelease:               fields.Get(document.FieldPrerelease) == "true",
		RequireLicenseAcceptance: fields.Get(document.FieldRequiresLicense) == "true",
		Published:                fields.Get(document.FieldOriginalPublished),
		LastEdited:               fields.Get(document.FieldOriginalLastEdited),
		TotalDownloads:           f.g.PackageDownloads(sd.Doc),
		Versions:                 f.versions(fields.Get(document.FieldID)),
		Dependencies:             rawJSON(fields, document.FieldDependencies),
		SupportedFrameworks:      rawJSON(fields, document.FieldSupportedFrameworks),
		PackageTypes:             rawJSON(fields, document.FieldPackageTypes),
		Score:                    sd.Score,
	}
	if size, err := strconv.ParseInt(strings.TrimSpace(fields.Get(document.FieldPackageSize)), 10, 64); err == nil {
		h.PackageSize = size
	}
	if explanation != nil {
		h.Explanation = explanation.String()
	}
	return h, nil
}

func (f *formatter) owners(doc uint32) []string {
	if int(doc) < len(f.g.OwnersByDoc) && f.g.OwnersByDoc[doc] != nil {
		return f.g.OwnersByDoc[doc]
	}
	return []string{}
}

// versions lists the versions of id visible under the request's predicate,
// oldest first.
func (f *formatter) versions(id string) []HitVersion {
	entries := f.g.VersionsOf(id)
	out := make([]HitVersion, 0, len(entries))
	for _, e := range entries {
		if !e.Listed && !f.includeUnlisted {
			continue
		}
		if e.Prerelease && !f.includePrerelease {
			continue
		}
		out = append(out, HitVersion{Version: e.Version, Downloads: e.Downloads})
	}
	return out
}

func rawJSON(fields index.StoredFields, name string) json.RawMessage {
	v := fields.Get(name)
	if v == "" || !json.Valid([]byte(v)) {
		return nil
	}
	return json.RawMessage(v)
}

func splitList(s, seps string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return strings.ContainsRune(seps, r) })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
