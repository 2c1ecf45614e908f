package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// CommitFileName is the manifest naming the live segments of an index.
const CommitFileName = "commit.json"

var ErrNoCommit = errors.New("index has no commit")

// SegmentInfo describes one committed segment.
type SegmentInfo struct {
	Name     string `json:"name"`
	DocCount int    `json:"docCount"`
	DelGen   int64  `json:"delGen"`
	DelCount int    `json:"delCount"`
}

// Commit is the decoded commit.json. Generation increases with every commit;
// ID is unique to one commit across directories and processes.
type Commit struct {
	ID          string            `json:"id"`
	Generation  int64             `json:"generation"`
	NextSegment int64             `json:"nextSegment"`
	Segments    []SegmentInfo     `json:"segments"`
	UserData    map[string]string `json:"userData,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

// LiveDocs is the committed document count minus deletions.
func (c *Commit) LiveDocs() int {
	n := 0
	for _, s := range c.Segments {
		n += s.DocCount - s.DelCount
	}
	return n
}

// CommitMetadata is the user data the indexing job attaches to each commit.
type CommitMetadata struct {
	CommitTimeStamp time.Time `json:"commitTimeStamp"`
	Description     string    `json:"description"`
	Count           int       `json:"count"`
	Trace           string    `json:"trace"`
}

const (
	userDataTimeStamp   = "commitTimeStamp"
	userDataDescription = "description"
	userDataCount       = "count"
	userDataTrace       = "trace"
)

func (m CommitMetadata) UserData() map[string]string {
	return map[string]string{
		userDataTimeStamp:   m.CommitTimeStamp.UTC().Format(time.RFC3339Nano),
		userDataDescription: m.Description,
		userDataCount:       strconv.Itoa(m.Count),
		userDataTrace:       m.Trace,
	}
}

// ParseCommitMetadata reads CommitMetadata back from user data, leaving
// absent or unparsable entries at their zero value.
func ParseCommitMetadata(userData map[string]string) CommitMetadata {
	var m CommitMetadata
	if ts, err := time.Parse(time.RFC3339Nano, userData[userDataTimeStamp]); err == nil {
		m.CommitTimeStamp = ts
	}
	m.Description = userData[userDataDescription]
	if n, err := strconv.Atoi(userData[userDataCount]); err == nil {
		m.Count = n
	}
	m.Trace = userData[userDataTrace]
	return m
}

// ReadCommit loads the current commit of dir.
func ReadCommit(dir string) (*Commit, error) {
	data, err := os.ReadFile(filepath.Join(dir, CommitFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w in %s", ErrNoCommit, dir)
		}
		return nil, fmt.Errorf("reading commit: %w", err)
	}
	var c Commit
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing commit: %w", err)
	}
	return &c, nil
}

func writeCommit(dir string, c *Commit) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling commit: %w", err)
	}
	path := filepath.Join(dir, CommitFileName)
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating commit file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing commit file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("syncing commit file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing commit file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publishing commit file: %w", err)
	}
	return nil
}
