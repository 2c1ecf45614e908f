package document

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/frameworks"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/version"
)

const (
	idBoost       float32 = 2.0
	noTagsBoost   float32 = 0.5
	tagsBoost     float32 = 2.0
	demotedBoost  float32 = 0.1
	semVerLevel1          = "1"
	semVerLevel2          = "2"
	unpublishedOn         = "19000101"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"1/2/2006 3:04:05 PM",
}

// Options tweaks document construction.
type Options struct {
	// ApplyLanguageDemotion gives packages whose id ends in ".<language>" a
	// boost of 0.1. Off by default to keep the historical ranking, where the
	// demotion was computed and then reset to 1.0.
	ApplyLanguageDemotion bool
	Logger                *slog.Logger
}

// Create builds an index document from a metadata record with default
// options.
func Create(record map[string]string) (*index.Document, error) {
	return CreateWithOptions(record, Options{})
}

// CreateWithOptions builds an index document from a metadata record. Every
// problem is collected into one *ValidationError.
func CreateWithOptions(record map[string]string, opts Options) (*index.Document, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "document")
	}
	b := &builder{
		record: record,
		doc:    index.NewDocument(),
		errs:   &ValidationError{},
		logger: logger,
	}

	b.addID()
	b.addVersion()
	b.addTitle()
	b.addAnalyzed(FieldDescription, "description", 1.0)
	b.addAnalyzed(FieldSummary, "summary", 1.0)
	b.addAnalyzed(FieldTags, "tags", tagsBoost)
	b.addAnalyzed(FieldAuthors, "authors", 1.0)

	b.addSemVerLevel()
	b.addListed()
	b.addDates()

	b.addStored(FieldIconURL, "iconUrl")
	b.addStored(FieldProjectURL, "projectUrl")
	b.addStored(FieldMinClientVersion, "minClientVersion")
	b.addStored(FieldReleaseNotes, "releaseNotes")
	b.addStored(FieldCopyright, "copyright")
	b.addStored(FieldLanguage, "language")
	b.addStored(FieldLicenseURL, "licenseUrl")
	b.addStored(FieldPackageHash, "packageHash")
	b.addStored(FieldPackageHashAlgorithm, "packageHashAlgorithm")
	b.addPackageSize()
	b.addRequiresLicenseAcceptance()
	b.addDependencies()
	b.addPackageTypes()
	b.addSupportedFrameworks()

	b.doc.Boost = 1.0
	if opts.ApplyLanguageDemotion && languageDemoted(record) {
		b.doc.Boost = demotedBoost
	}

	if !b.errs.empty() {
		return nil, b.errs
	}
	return b.doc, nil
}

type builder struct {
	record    map[string]string
	doc       *index.Document
	errs      *ValidationError
	logger    *slog.Logger
	published time.Time
}

func (b *builder) get(key string) (string, bool) {
	v, ok := b.record[key]
	return v, ok
}

// getFold looks a key up ignoring case.
func (b *builder) getFold(key string) (string, bool) {
	if v, ok := b.record[key]; ok {
		return v, true
	}
	for k, v := range b.record {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

func (b *builder) addID() {
	id, ok := b.get("id")
	if !ok || strings.TrimSpace(id) == "" {
		b.errs.missing("id")
		return
	}
	boost := idBoost
	if _, hasTags := b.get("tags"); !hasTags {
		boost += noTagsBoost
	}
	b.doc.Add(FieldID, id, tokenizer.Keyword, boost)
	b.doc.Add(FieldIDAutocomplete, id, tokenizer.Autocomplete, boost)
	b.doc.Add(FieldTokenizedID, id, tokenizer.Identifier, boost)
	b.doc.Add(FieldShingledID, id, tokenizer.IdentifierShingles, boost)
}

func (b *builder) addVersion() {
	original, hasOriginal := b.get("originalVersion")
	if hasOriginal {
		b.doc.Store(FieldOriginalVersion, original)
	}

	raw, ok := b.get("version")
	if !ok && hasOriginal {
		normalized, err := version.Normalize(original)
		if err != nil {
			b.errs.malformed("originalVersion")
			return
		}
		raw, ok = normalized, true
	}
	if !ok {
		b.errs.missing("version")
		return
	}
	parsed, err := version.Parse(raw)
	if err != nil {
		b.errs.malformed("version")
		return
	}
	b.doc.Add(FieldVersion, parsed.Normalized(), tokenizer.Keyword, 1.0)
	b.doc.Store(FieldPrerelease, strconv.FormatBool(parsed.IsPrerelease()))
	if id, ok := b.get("id"); ok && strings.TrimSpace(id) != "" {
		b.doc.Add(FieldKey, Key(id, parsed.Normalized()), tokenizer.Keyword, 1.0)
	}
}

func (b *builder) title() string {
	title, _ := b.get("title")
	if strings.TrimSpace(title) == "" {
		title, _ = b.get("id")
	}
	return title
}

func (b *builder) addTitle() {
	title := b.title()
	b.doc.Add(FieldTitle, title, tokenizer.Text, 1.0)
	b.doc.Store(FieldSortableTitle, strings.ToLower(strings.TrimSpace(title)))
}

// addAnalyzed indexes an optional prose field. Absent fields are indexed
// empty so every document carries every searchable field.
func (b *builder) addAnalyzed(field, key string, boost float32) {
	value, _ := b.get(key)
	b.doc.Add(field, value, tokenizer.Text, boost)
}

func (b *builder) addStored(field, key string) {
	if value, ok := b.get(key); ok {
		b.doc.Store(field, value)
	}
}

func (b *builder) addSemVerLevel() {
	level := semVerLevel1
	if raw, ok := b.getFold("semVerLevelKey"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && n >= 2 {
			level = semVerLevel2
		}
	}
	b.doc.Add(FieldSemVerLevel, level, tokenizer.Keyword, 1.0)
}

func (b *builder) addListed() {
	raw, ok := b.get("listed")
	if !ok {
		listed := "true"
		if published, ok := b.get("published"); ok {
			if t, err := parseDate(published); err == nil && t.Format("20060102") == unpublishedOn {
				listed = "false"
			}
		}
		b.doc.Add(FieldListed, listed, tokenizer.Keyword, 1.0)
		return
	}
	listed, err := parseBool(raw)
	if err != nil {
		b.errs.malformed("listed")
		return
	}
	b.doc.Add(FieldListed, strconv.FormatBool(listed), tokenizer.Keyword, 1.0)
}

func (b *builder) addDates() {
	if created, ok := b.get("created"); ok {
		b.doc.Store(FieldOriginalCreated, created)
	}

	published, ok := b.get("published")
	if !ok {
		b.errs.missing("published")
		return
	}
	b.doc.Store(FieldOriginalPublished, published)
	publishedAt, err := parseDate(published)
	if err != nil {
		b.errs.malformed("published")
		return
	}
	b.published = publishedAt
	b.doc.Store(FieldPublishedDate, dateInt(publishedAt))

	lastEditedAt := publishedAt
	if lastEdited, ok := b.get("lastEdited"); ok && !isMinDate(lastEdited) {
		b.doc.Store(FieldOriginalLastEdited, lastEdited)
		t, err := parseDate(lastEdited)
		if err != nil {
			b.errs.malformed("lastEdited")
			return
		}
		lastEditedAt = t
	}
	b.doc.Store(FieldLastEditedDate, dateInt(lastEditedAt))
}

func (b *builder) addPackageSize() {
	raw, ok := b.get("packageSize")
	if !ok {
		return
	}
	if _, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 32); err != nil {
		b.errs.malformed("packageSize")
		return
	}
	b.doc.Store(FieldPackageSize, raw)
}

func (b *builder) addRequiresLicenseAcceptance() {
	raw, ok := b.get("requireLicenseAcceptance")
	if !ok {
		return
	}
	v, err := parseBool(raw)
	if err != nil {
		b.errs.malformed("requireLicenseAcceptance")
		return
	}
	b.doc.Store(FieldRequiresLicense, strconv.FormatBool(v))
}

func (b *builder) addDependencies() {
	flattened, ok := b.get("flattenedDependencies")
	if !ok {
		return
	}
	b.doc.Store(FieldFlattenedDependencies, flattened)
	if strings.TrimSpace(flattened) == "" {
		return
	}
	deps, err := DependenciesJSON(flattened)
	if err != nil {
		b.errs.malformed("flattenedDependencies")
		return
	}
	b.doc.Store(FieldDependencies, deps)
}

func (b *builder) addPackageTypes() {
	flattened, ok := b.get("flattenedPackageTypes")
	if !ok {
		return
	}
	b.doc.Store(FieldFlattenedPackageTypes, flattened)
	types, err := PackageTypesJSON(flattened)
	if err != nil {
		b.errs.malformed("flattenedPackageTypes")
		return
	}
	b.doc.Store(FieldPackageTypes, types)
}

func (b *builder) addSupportedFrameworks() {
	flattened, ok := b.get("supportedFrameworks")
	if !ok {
		return
	}
	known, unknown := frameworks.Classify(flattened)
	for _, m := range unknown {
		b.logger.Warn("skipping unclassifiable framework", "id", b.record["id"], "framework", m)
	}
	if known == nil {
		known = []string{}
	}
	data, err := json.Marshal(known)
	if err != nil {
		b.errs.malformed("supportedFrameworks")
		return
	}
	b.doc.Store(FieldSupportedFrameworks, string(data))
}

func languageDemoted(record map[string]string) bool {
	id, hasID := record["id"]
	language, hasLanguage := record["language"]
	if !hasID || !hasLanguage || strings.TrimSpace(language) == "" {
		return false
	}
	suffix := "." + strings.ToLower(strings.TrimSpace(language))
	return strings.HasSuffix(strings.ToLower(id), suffix)
}

func parseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func isMinDate(raw string) bool {
	t, err := parseDate(raw)
	return err == nil && t.Year() == 1 && t.Month() == time.January && t.Day() == 1
}

func dateInt(t time.Time) string {
	return t.Format("20060102")
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, strconv.ErrSyntax
}
