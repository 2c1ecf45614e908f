package indexer

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/internal/indexer/index"
)

func BenchmarkMemoryIndexAdd(b *testing.B) {
	mi := index.NewMemoryIndex()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		mi.AddDocument(pkgDoc(fmt.Sprintf("Package.%d", i), "1.0.0"))
	}
}

func BenchmarkMemoryIndexSnapshot(b *testing.B) {
	mi := index.NewMemoryIndex()
	for i := 0; i < 5000; i++ {
		mi.AddDocument(pkgDoc(fmt.Sprintf("Package.%d", i), "1.0.0"))
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = mi.Snapshot()
	}
}

// BenchmarkWriterCommit measures flushing a batch of documents into a new
// segment on top of indexes of growing size.
func BenchmarkWriterCommit(b *testing.B) {
	for _, preload := range []int{100, 1000, 5000} {
		b.Run(fmt.Sprintf("preload_%d", preload), func(b *testing.B) {
			w, err := OpenWriter(b.TempDir())
			if err != nil {
				b.Fatal(err)
			}
			defer w.Close()
			for i := 0; i < preload; i++ {
				w.AddDocument(pkgDoc(fmt.Sprintf("Preload.%d", i), "1.0.0"))
			}
			if _, err := w.Commit(nil); err != nil {
				b.Fatal(err)
			}

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				for j := 0; j < 100; j++ {
					w.AddDocument(pkgDoc(fmt.Sprintf("Bench.%d.%d", i, j), "1.0.0"))
				}
				if _, err := w.Commit(nil); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkReaderPostings(b *testing.B) {
	dir := b.TempDir()
	w, err := OpenWriter(dir)
	if err != nil {
		b.Fatal(err)
	}
	defer w.Close()
	for seg := 0; seg < 4; seg++ {
		for i := 0; i < 2500; i++ {
			w.AddDocument(pkgDoc(fmt.Sprintf("Package.%d.%d", seg, i), "1.0.0"))
		}
		if _, err := w.Commit(nil); err != nil {
			b.Fatal(err)
		}
	}
	r, err := OpenDirectory(dir)
	if err != nil {
		b.Fatal(err)
	}
	defer r.Close()

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := r.Postings("Version", "1.0.0"); err != nil {
				b.Fatal(err)
			}
		}
	})
}
