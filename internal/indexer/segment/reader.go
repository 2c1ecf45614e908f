package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/index"
)

// FieldStats summarizes one field across a segment for BM25.
type FieldStats struct {
	DocCount  int
	SumLength int64
}

type Reader struct {
	file       *os.File
	filePath   string
	header     SegmentHeader
	footer     SegmentFooter
	dict       []DictEntry
	meta       segmentMeta
	fieldStats map[string]FieldStats
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := parse(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func parse(f *os.File, path string) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat segment file: %w", err)
	}
	if info.Size() < int64(HeaderSize+FooterSize) {
		return nil, fmt.Errorf("invalid segment file %s: truncated (%d bytes)", path, info.Size())
	}
	headerBytes, err := readSection(f, 0, int64(HeaderSize))
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", magic)
	}
	header := SegmentHeader{
		Magic:      magic,
		Version:    binary.LittleEndian.Uint32(headerBytes[4:8]),
		TermCount:  binary.LittleEndian.Uint32(headerBytes[8:12]),
		DocCount:   binary.LittleEndian.Uint32(headerBytes[12:16]),
		DictOffset: int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		DictSize:   int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		PostOffset: int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		PostSize:   int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
		DocsOffset: int64(binary.LittleEndian.Uint64(headerBytes[48:56])),
		DocsSize:   int64(binary.LittleEndian.Uint64(headerBytes[56:64])),
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment format version %d", header.Version)
	}

	footerBytes, err := readSection(f, info.Size()-int64(FooterSize), int64(FooterSize))
	if err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	footer := SegmentFooter{
		DictChecksum: binary.LittleEndian.Uint32(footerBytes[0:4]),
		MetaChecksum: binary.LittleEndian.Uint32(footerBytes[4:8]),
		CreatedAt:    int64(binary.LittleEndian.Uint64(footerBytes[8:16])),
		MetaOffset:   int64(binary.LittleEndian.Uint64(footerBytes[16:24])),
		MetaSize:     int64(binary.LittleEndian.Uint64(footerBytes[24:32])),
	}

	dictBytes, err := readSection(f, header.DictOffset, header.DictSize)
	if err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	if crc32.ChecksumIEEE(dictBytes) != footer.DictChecksum {
		return nil, fmt.Errorf("dictionary checksum mismatch in %s", path)
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}

	metaBytes, err := readSection(f, footer.MetaOffset, footer.MetaSize)
	if err != nil {
		return nil, fmt.Errorf("reading segment meta: %w", err)
	}
	if crc32.ChecksumIEEE(metaBytes) != footer.MetaChecksum {
		return nil, fmt.Errorf("meta checksum mismatch in %s", path)
	}
	var meta segmentMeta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, fmt.Errorf("parsing segment meta: %w", err)
	}
	if len(meta.DocOffsets) != int(header.DocCount) {
		return nil, fmt.Errorf("segment %s: %d doc offsets for %d docs", path, len(meta.DocOffsets), header.DocCount)
	}

	stats := make(map[string]FieldStats, len(meta.Norms))
	for field, norms := range meta.Norms {
		var s FieldStats
		for _, n := range norms {
			if n.Length > 0 {
				s.DocCount++
				s.SumLength += int64(n.Length)
			}
		}
		stats[field] = s
	}

	return &Reader{
		file:       f,
		filePath:   path,
		header:     header,
		footer:     footer,
		dict:       dict,
		meta:       meta,
		fieldStats: stats,
	}, nil
}

func (r *Reader) lookup(field, term string) (DictEntry, bool) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		e := r.dict[i]
		if e.Field != field {
			return e.Field > field
		}
		return e.Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Field != field || r.dict[idx].Term != term {
		return DictEntry{}, false
	}
	return r.dict[idx], true
}

// Search returns the postings of a field term with segment-local doc ids.
func (r *Reader) Search(field, term string) (index.PostingList, error) {
	entry, ok := r.lookup(field, term)
	if !ok {
		return nil, nil
	}
	postingsBytes, err := readSection(r.file, r.header.PostOffset+entry.PostOffset, int64(entry.PostLen))
	if err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings: %w", err)
	}
	return postings, nil
}

// DocFreq returns the number of segment documents containing the term,
// deleted ones included.
func (r *Reader) DocFreq(field, term string) int {
	entry, ok := r.lookup(field, term)
	if !ok {
		return 0
	}
	return entry.DocFreq
}

// Document decodes the stored fields of a segment-local document.
func (r *Reader) Document(doc uint32) (index.StoredFields, error) {
	if doc >= r.header.DocCount {
		return nil, fmt.Errorf("doc %d out of range (segment has %d)", doc, r.header.DocCount)
	}
	data, err := readSection(r.file, r.header.DocsOffset+r.meta.DocOffsets[doc], int64(r.meta.DocLens[doc]))
	if err != nil {
		return nil, fmt.Errorf("reading stored document %d: %w", doc, err)
	}
	var fields index.StoredFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("parsing stored document %d: %w", doc, err)
	}
	return fields, nil
}

// Norm returns the length and boost of field in doc.
func (r *Reader) Norm(field string, doc uint32) index.FieldNorm {
	norms := r.meta.Norms[field]
	if int(doc) >= len(norms) {
		return index.FieldNorm{}
	}
	return norms[doc]
}

func (r *Reader) DocBoost(doc uint32) float32 {
	if int(doc) >= len(r.meta.DocBoosts) {
		return 1.0
	}
	return r.meta.DocBoosts[doc]
}

func (r *Reader) FieldStats(field string) FieldStats {
	return r.fieldStats[field]
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) Close() error {
	return r.file.Close()
}
