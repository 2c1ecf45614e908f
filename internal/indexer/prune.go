package indexer

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/segment"
)

// referencedFiles lists the segment and deletion files the commits need.
func referencedFiles(commits ...*Commit) map[string]bool {
	files := make(map[string]bool)
	for _, c := range commits {
		if c == nil {
			continue
		}
		for _, info := range c.Segments {
			files[segment.FileName(info.Name)] = true
			if info.DelGen > 0 {
				files[segment.DeletesFileName(info.Name, info.DelGen)] = true
			}
		}
	}
	return files
}

// prune removes segment and deletion files referenced by neither of the
// last two commits. Readers still on the previous commit keep working;
// older readers hold their segment files open and only fail a reopen that
// races with the removal. Failures are logged and retried on the next
// commit.
func (w *Writer) prune(previous, next *Commit) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("listing index directory for pruning", "error", err)
		return
	}
	keep := referencedFiles(previous, next)
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || keep[name] {
			continue
		}
		if !strings.HasSuffix(name, segment.Extension) && !strings.HasSuffix(name, segment.DeletesExtension) {
			continue
		}
		if err := os.Remove(filepath.Join(w.dir, name)); err != nil && !os.IsNotExist(err) {
			w.logger.Warn("pruning index file", "file", name, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		w.logger.Debug("pruned unreferenced index files", "files", removed, "generation", next.Generation)
	}
}
