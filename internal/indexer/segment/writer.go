package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/index"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 32
	Extension            = ".spdx"
)

// SegmentHeader is the 64-byte header written at the start of every segment.
// Layout: postings, stored documents, meta (doc offsets, norms, boosts),
// dictionary, footer.
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	DictOffset int64
	DictSize   int64
	PostOffset int64
	PostSize   int64
	DocsOffset int64
	DocsSize   int64
}

// SegmentFooter trails the dictionary and locates the meta section.
type SegmentFooter struct {
	DictChecksum uint32
	MetaChecksum uint32
	CreatedAt    int64
	MetaOffset   int64
	MetaSize     int64
}

// DictEntry maps a (field, term) pair to its postings offset, length, and
// document frequency in the segment file.
type DictEntry struct {
	Field      string `json:"f"`
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

type segmentMeta struct {
	DocOffsets []int64                      `json:"offsets"`
	DocLens    []int                        `json:"lens"`
	Norms      map[string][]index.FieldNorm `json:"norms"`
	DocBoosts  []float32                    `json:"boosts"`
}

// Writer serialises buffered documents into new .spdx segment files.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// FileName returns the on-disk name of segment name.
func FileName(name string) string {
	return name + Extension
}

// Write atomically creates segment name from data. It writes to a .tmp file
// first and renames on success.
func (w *Writer) Write(name string, data index.SegmentData) error {
	if len(data.Docs) == 0 {
		return fmt.Errorf("cannot write empty segment %s", name)
	}
	finalPath := filepath.Join(w.dataDir, FileName(name))
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0o755); err != nil {
		return fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp segment file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	headerBytes := make([]byte, HeaderSize)
	if _, err := f.Write(headerBytes); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	postingsStart := int64(HeaderSize)
	offset := postingsStart
	dict := make([]DictEntry, 0, len(data.Terms))
	for _, entry := range data.Terms {
		postingsData, err := json.Marshal(entry.Postings)
		if err != nil {
			return fmt.Errorf("marshaling postings for %s:%q: %w", entry.Field, entry.Term, err)
		}
		if _, err := f.Write(postingsData); err != nil {
			return fmt.Errorf("writing postings for %s:%q: %w", entry.Field, entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Field:      entry.Field,
			Term:       entry.Term,
			PostOffset: offset - postingsStart,
			PostLen:    len(postingsData),
			DocFreq:    len(entry.Postings),
		})
		offset += int64(len(postingsData))
	}
	postingsSize := offset - postingsStart

	docsStart := offset
	meta := segmentMeta{
		DocOffsets: make([]int64, 0, len(data.Docs)),
		DocLens:    make([]int, 0, len(data.Docs)),
		Norms:      data.Norms,
		DocBoosts:  data.DocBoosts,
	}
	for i, doc := range data.Docs {
		docData, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshaling stored document %d: %w", i, err)
		}
		if _, err := f.Write(docData); err != nil {
			return fmt.Errorf("writing stored document %d: %w", i, err)
		}
		meta.DocOffsets = append(meta.DocOffsets, offset-docsStart)
		meta.DocLens = append(meta.DocLens, len(docData))
		offset += int64(len(docData))
	}
	docsSize := offset - docsStart

	metaStart := offset
	metaData, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling segment meta: %w", err)
	}
	if _, err := f.Write(metaData); err != nil {
		return fmt.Errorf("writing segment meta: %w", err)
	}
	offset += int64(len(metaData))

	dictStart := offset
	dictData, err := json.Marshal(dict)
	if err != nil {
		return fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return fmt.Errorf("writing dictionary: %w", err)
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], crc32.ChecksumIEEE(metaData))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(time.Now().Unix()))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(metaStart))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(len(metaData)))
	if _, err := f.Write(footer); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}

	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(headerBytes[8:12], uint32(len(dict)))
	binary.LittleEndian.PutUint32(headerBytes[12:16], uint32(len(data.Docs)))
	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(dictStart))
	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(len(dictData)))
	binary.LittleEndian.PutUint64(headerBytes[32:40], uint64(postingsStart))
	binary.LittleEndian.PutUint64(headerBytes[40:48], uint64(postingsSize))
	binary.LittleEndian.PutUint64(headerBytes[48:56], uint64(docsStart))
	binary.LittleEndian.PutUint64(headerBytes[56:64], uint64(docsSize))
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming segment file: %w", err)
	}
	return nil
}

// readSection reads size bytes at off, failing on short reads.
func readSection(r io.ReaderAt, off, size int64) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := r.ReadAt(buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}
