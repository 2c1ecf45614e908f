package auxiliary

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// readArray streams the records of a top-level JSON array, handing each raw
// record to fn. A record fn rejects is logged and skipped; a document that
// is not an array, or is cut short, fails the whole file.
func readArray(r io.Reader, file string, logger *slog.Logger, fn func(json.RawMessage) error) error {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%s: reading opening token: %w", file, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return fmt.Errorf("%s: expected a JSON array, got %v", file, tok)
	}
	skipped := 0
	for dec.More() {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%s: decoding record: %w", file, err)
		}
		if err := fn(raw); err != nil {
			skipped++
			logger.Info("skipping invalid auxiliary record", "file", file, "error", err)
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%s: reading closing token: %w", file, err)
	}
	if skipped > 0 {
		logger.Warn("auxiliary file had invalid records", "file", file, "skipped", skipped)
	}
	return nil
}

// parseIDSet reads [["key",["value",...]],...] into key -> set. Keys and
// values are lower-cased when lowerValues is set; keys always are. The first
// record for a key wins.
func parseIDSet(r io.Reader, file string, lowerValues bool, logger *slog.Logger) (map[string]map[string]struct{}, error) {
	out := make(map[string]map[string]struct{})
	err := readArray(r, file, logger, func(raw json.RawMessage) error {
		var record []json.RawMessage
		if err := json.Unmarshal(raw, &record); err != nil {
			return err
		}
		if len(record) != 2 {
			return fmt.Errorf("expected 2 elements, got %d", len(record))
		}
		var key string
		if err := json.Unmarshal(record[0], &key); err != nil {
			return fmt.Errorf("key: %w", err)
		}
		var values []string
		if err := json.Unmarshal(record[1], &values); err != nil {
			return fmt.Errorf("values of %q: %w", key, err)
		}
		key = strings.ToLower(key)
		if _, dup := out[key]; dup {
			return nil
		}
		set := make(map[string]struct{}, len(values))
		for _, v := range values {
			if lowerValues {
				v = strings.ToLower(v)
			}
			set[v] = struct{}{}
		}
		out[key] = set
		return nil
	})
	return out, err
}

// parseOwners reads owners.json: [["id",["owner",...]],...].
func parseOwners(r io.Reader, logger *slog.Logger) (map[string]map[string]struct{}, error) {
	return parseIDSet(r, OwnersFile, false, logger)
}

// parseCuratedFeeds reads curatedfeeds.json: [["feed",["id",...]],...].
func parseCuratedFeeds(r io.Reader, logger *slog.Logger) (map[string]map[string]struct{}, error) {
	return parseIDSet(r, CuratedFeedsFile, true, logger)
}

// parseDownloads reads downloads.v1.json:
// [["id",["version",count],["version",count]],...]. Version entries that are
// not a [string, number] pair are ignored; the first occurrence of an id or
// version wins.
func parseDownloads(r io.Reader, logger *slog.Logger) (map[string]map[string]int, error) {
	out := make(map[string]map[string]int)
	err := readArray(r, DownloadsFile, logger, func(raw json.RawMessage) error {
		var record []json.RawMessage
		if err := json.Unmarshal(raw, &record); err != nil {
			return err
		}
		if len(record) == 0 {
			return fmt.Errorf("empty record")
		}
		var id string
		if err := json.Unmarshal(record[0], &id); err != nil {
			return fmt.Errorf("id: %w", err)
		}
		id = strings.ToLower(id)
		if len(record) == 2 && !isArray(record[1]) {
			return fmt.Errorf("versions of %q: not an array", id)
		}
		if _, dup := out[id]; dup {
			return nil
		}
		versions := make(map[string]int, len(record)-1)
		for _, entry := range record[1:] {
			var pair []json.RawMessage
			if err := json.Unmarshal(entry, &pair); err != nil || len(pair) != 2 {
				continue
			}
			var ver string
			var count int
			if json.Unmarshal(pair[0], &ver) != nil || json.Unmarshal(pair[1], &count) != nil {
				continue
			}
			key := versionKey(ver)
			if _, dup := versions[key]; !dup {
				versions[key] = count
			}
		}
		out[id] = versions
		return nil
	})
	return out, err
}

// parseRankings reads rankings.v1.json: {"Rank":["id",...]} where the array
// index is the rank.
func parseRankings(r io.Reader) (map[string]int, error) {
	var doc struct {
		Rank []string `json:"Rank"`
	}
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: %w", RankingsFile, err)
	}
	out := make(map[string]int, len(doc.Rank))
	for i, id := range doc.Rank {
		id = strings.ToLower(id)
		if _, dup := out[id]; !dup {
			out[id] = i
		}
	}
	return out, nil
}

func isArray(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return strings.HasPrefix(s, "[")
}
