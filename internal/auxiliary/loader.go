package auxiliary

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	apperrors "github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Package-Search-Service/pkg/postgres"
)

// Auxiliary file names.
const (
	OwnersFile       = "owners.json"
	CuratedFeedsFile = "curatedfeeds.json"
	DownloadsFile    = "downloads.v1.json"
	RankingsFile     = "rankings.v1.json"
)

// Loader opens a named auxiliary file.
type Loader interface {
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// FileLoader reads auxiliary files from a local directory, typically one
// kept in sync with blob storage by an external job.
type FileLoader struct {
	Dir string
}

func NewFileLoader(dir string) *FileLoader {
	return &FileLoader{Dir: dir}
}

func (l *FileLoader) Open(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(l.Dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("auxiliary file %s: %w", name, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("opening auxiliary file %s: %w", name, err)
	}
	return f, nil
}

// PostgresLoader reads auxiliary files from the auxiliary_files table:
//
//	CREATE TABLE auxiliary_files (name TEXT PRIMARY KEY, content BYTEA NOT NULL);
type PostgresLoader struct {
	client *postgres.Client
}

func NewPostgresLoader(client *postgres.Client) *PostgresLoader {
	return &PostgresLoader{client: client}
}

func (l *PostgresLoader) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	var content []byte
	err := l.client.InReadTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`SELECT content FROM auxiliary_files WHERE name = $1`, name,
		).Scan(&content)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("auxiliary file %s: %w", name, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying auxiliary file %s: %w", name, err)
	}
	return io.NopCloser(bytes.NewReader(content)), nil
}
