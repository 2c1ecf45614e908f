// Package document turns flat package metadata records into index
// documents and reconstructs structured values from their stored form.
package document

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/tokenizer"
)

// Index field names.
const (
	FieldKey                   = "Key"
	FieldID                    = "Id"
	FieldIDAutocomplete        = "IdAutocomplete"
	FieldTokenizedID           = "TokenizedId"
	FieldShingledID            = "ShingledId"
	FieldVersion               = "Version"
	FieldOriginalVersion       = "OriginalVersion"
	FieldPrerelease            = "Prerelease"
	FieldTitle                 = "Title"
	FieldSortableTitle         = "SortableTitle"
	FieldDescription           = "Description"
	FieldSummary               = "Summary"
	FieldTags                  = "Tags"
	FieldAuthors               = "Authors"
	FieldSemVerLevel           = "SemVerLevel"
	FieldListed                = "Listed"
	FieldOriginalCreated       = "OriginalCreated"
	FieldOriginalPublished     = "OriginalPublished"
	FieldPublishedDate         = "PublishedDate"
	FieldOriginalLastEdited    = "OriginalLastEdited"
	FieldLastEditedDate        = "LastEditedDate"
	FieldIconURL               = "IconUrl"
	FieldProjectURL            = "ProjectUrl"
	FieldMinClientVersion      = "MinClientVersion"
	FieldReleaseNotes          = "ReleaseNotes"
	FieldCopyright             = "Copyright"
	FieldLanguage              = "Language"
	FieldLicenseURL            = "LicenseUrl"
	FieldPackageHash           = "PackageHash"
	FieldPackageHashAlgorithm  = "PackageHashAlgorithm"
	FieldPackageSize           = "PackageSize"
	FieldRequiresLicense       = "RequiresLicenseAcceptance"
	FieldFlattenedDependencies = "FlattenedDependencies"
	FieldDependencies          = "Dependencies"
	FieldSupportedFrameworks   = "SupportedFrameworks"
	FieldFlattenedPackageTypes = "FlattenedPackageTypes"
	FieldPackageTypes          = "PackageTypes"
)

// Analyzers maps every searchable field to the chain it was indexed with, so
// query terms are analyzed the same way.
var Analyzers = map[string]tokenizer.Kind{
	FieldKey:            tokenizer.Keyword,
	FieldID:             tokenizer.Keyword,
	FieldIDAutocomplete: tokenizer.Autocomplete,
	FieldTokenizedID:    tokenizer.Identifier,
	FieldShingledID:     tokenizer.IdentifierShingles,
	FieldVersion:        tokenizer.Keyword,
	FieldTitle:          tokenizer.Text,
	FieldDescription:    tokenizer.Text,
	FieldSummary:        tokenizer.Text,
	FieldTags:           tokenizer.Text,
	FieldAuthors:        tokenizer.Text,
	FieldSemVerLevel:    tokenizer.Keyword,
	FieldListed:         tokenizer.Keyword,
}

// AnalyzerFor returns the chain of field, defaulting to Keyword.
func AnalyzerFor(field string) tokenizer.Kind {
	if k, ok := Analyzers[field]; ok {
		return k
	}
	return tokenizer.Keyword
}

// Key identifies one package version in the index: the lower-cased id and
// normalized version joined by '/'. Writers update documents by Key.
func Key(id, normalizedVersion string) string {
	return strings.ToLower(id) + "/" + strings.ToLower(normalizedVersion)
}
