package index

// Posting records one document's occurrences of a term. Doc is local to the
// segment (or buffer) the posting belongs to.
type Posting struct {
	Doc       uint32 `json:"d"`
	Frequency int    `json:"f"`
	Positions []int  `json:"p,omitempty"`
}

type PostingList []Posting

// TermEntry is one (field, term) row of the dictionary.
type TermEntry struct {
	Field    string
	Term     string
	Postings PostingList
}

// FieldNorm carries the per-document length and index-time boost of one
// field, used by BM25 length normalization.
type FieldNorm struct {
	Length uint32  `json:"l"`
	Boost  float32 `json:"b"`
}

// StoredFields is the retrievable view of a document.
type StoredFields map[string]string

func (s StoredFields) Get(name string) string {
	return s[name]
}

// Has reports whether the field was stored at all, which differs from being
// stored with an empty value.
func (s StoredFields) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// SegmentData is everything needed to write one segment.
type SegmentData struct {
	Terms     []TermEntry
	Docs      []StoredFields
	Norms     map[string][]FieldNorm
	DocBoosts []float32
}
