package index

import "github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/tokenizer"

// Field is one named value of a document. Analyzer tokenizer.None makes the
// field stored-only.
type Field struct {
	Name     string
	Value    string
	Analyzer tokenizer.Kind
	Boost    float32
	Stored   bool
}

// Document is the unit the writer buffers and flushes into segments.
type Document struct {
	Fields []Field
	Boost  float32
}

func NewDocument() *Document {
	return &Document{Boost: 1.0}
}

// Add appends an indexed field that is also stored.
func (d *Document) Add(name, value string, analyzer tokenizer.Kind, boost float32) {
	d.Fields = append(d.Fields, Field{Name: name, Value: value, Analyzer: analyzer, Boost: boost, Stored: true})
}

// Store appends a stored-only field.
func (d *Document) Store(name, value string) {
	d.Fields = append(d.Fields, Field{Name: name, Value: value, Analyzer: tokenizer.None, Boost: 1.0, Stored: true})
}

// Get returns the first value stored under name.
func (d *Document) Get(name string) (string, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Field returns the first field named name, or nil.
func (d *Document) Field(name string) *Field {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return &d.Fields[i]
		}
	}
	return nil
}

// Stored returns the stored projection of the document.
func (d *Document) Stored() StoredFields {
	out := make(StoredFields, len(d.Fields))
	for _, f := range d.Fields {
		if f.Stored {
			if _, exists := out[f.Name]; !exists {
				out[f.Name] = f.Value
			}
		}
	}
	return out
}
