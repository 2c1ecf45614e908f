package segment

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RoaringBitmap/roaring"
)

// DeletesExtension is the suffix of deletion bitmap files.
const DeletesExtension = ".del"

// DeletesFileName names the deletion bitmap of a segment at delGen.
func DeletesFileName(name string, delGen int64) string {
	return fmt.Sprintf("%s_%d%s", name, delGen, DeletesExtension)
}

// ReadDeletes loads the deletion bitmap of a segment. delGen 0 means the
// segment has never had deletions.
func ReadDeletes(dir, name string, delGen int64) (*roaring.Bitmap, error) {
	bm := roaring.New()
	if delGen == 0 {
		return bm, nil
	}
	f, err := os.Open(filepath.Join(dir, DeletesFileName(name, delGen)))
	if err != nil {
		return nil, fmt.Errorf("opening deletes for %s: %w", name, err)
	}
	defer f.Close()
	if _, err := bm.ReadFrom(bufio.NewReader(f)); err != nil {
		return nil, fmt.Errorf("decoding deletes for %s: %w", name, err)
	}
	return bm, nil
}

// WriteDeletes persists bm as the deletion bitmap of a segment at delGen.
func WriteDeletes(dir, name string, delGen int64, bm *roaring.Bitmap) error {
	if delGen <= 0 {
		return errors.New("delGen must be positive")
	}
	path := filepath.Join(dir, DeletesFileName(name, delGen))
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating deletes file: %w", err)
	}
	w := bufio.NewWriter(f)
	if _, err := bm.WriteTo(w); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encoding deletes for %s: %w", name, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flushing deletes for %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing deletes for %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing deletes for %s: %w", name, err)
	}
	return os.Rename(tmp, path)
}
