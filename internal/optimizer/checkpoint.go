package optimizer

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// checkpointEntry is one line of a run's append-only journal.
type checkpointEntry struct {
	TrialID    int             `json:"trial_id"`
	ConfigHash string          `json:"config_hash"`
	Result     json.RawMessage `json:"result"`
}

// Checkpoint is the append-only journal backing optimizer resume: a
// completed trial is appended as one JSON line as soon as it
// finishes, so an interrupted run can skip every already-computed
// config hash and the journal is removed only once the run completes
// successfully.
type Checkpoint struct {
	mu  sync.Mutex
	dir string
}

// NewCheckpoint constructs a Checkpoint rooted at dir, creating it if
// necessary.
func NewCheckpoint(dir string) (*Checkpoint, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("optimizer: creating checkpoint dir: %w", err)
	}
	return &Checkpoint{dir: dir}, nil
}

func (c *Checkpoint) path(runID string) string {
	return filepath.Join(c.dir, runID+".jsonl")
}

// SaveTrial appends one completed trial's result to runID's journal.
func (c *Checkpoint) SaveTrial(runID string, trialID int, configHash string, result interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("optimizer: marshaling trial result: %w", err)
	}
	entry, err := json.Marshal(checkpointEntry{TrialID: trialID, ConfigHash: configHash, Result: payload})
	if err != nil {
		return fmt.Errorf("optimizer: marshaling checkpoint entry: %w", err)
	}

	f, err := os.OpenFile(c.path(runID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("optimizer: opening checkpoint file: %w", err)
	}
	defer f.Close()

	_, err = f.Write(append(entry, '\n'))
	return err
}

// LoadCompleted returns every trial result recorded in runID's
// journal, keyed by config hash. A missing journal yields an empty,
// non-error result.
func (c *Checkpoint) LoadCompleted(runID string) (map[string]json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Open(c.path(runID))
	if os.IsNotExist(err) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("optimizer: opening checkpoint file: %w", err)
	}
	defer f.Close()

	completed := make(map[string]json.RawMessage)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry checkpointEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue // a partially-written last line is skipped, not fatal
		}
		completed[entry.ConfigHash] = entry.Result
	}
	return completed, scanner.Err()
}

// Cleanup removes runID's journal file. Called once a run completes
// successfully so a future run with the same id starts fresh.
func (c *Checkpoint) Cleanup(runID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := os.Remove(c.path(runID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ListCheckpoints returns every run id with a live journal file.
func (c *Checkpoint) ListCheckpoints() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	matches, err := filepath.Glob(filepath.Join(c.dir, "*.jsonl"))
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = strings.TrimSuffix(filepath.Base(m), ".jsonl")
	}
	return ids, nil
}

// ConfigHash returns the first 16 hex characters of the SHA-256 of
// config's canonical JSON encoding, used to identify a trial's
// parameter set independent of trial ordering.
func ConfigHash(config interface{}) (string, error) {
	canonical, err := canonicalJSON(config)
	if err != nil {
		return "", fmt.Errorf("optimizer: hashing config: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])[:16], nil
}

// canonicalJSON re-marshals v through a generic map/slice so object
// keys are sorted, matching Python's json.dumps(sort_keys=True).
func canonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return marshalSorted(generic)
}

func marshalSorted(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var b strings.Builder
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			kb, _ := json.Marshal(k)
			b.Write(kb)
			b.WriteByte(':')
			vb, err := marshalSorted(val[k])
			if err != nil {
				return nil, err
			}
			b.Write(vb)
		}
		b.WriteByte('}')
		return []byte(b.String()), nil
	case []interface{}:
		var b strings.Builder
		b.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			eb, err := marshalSorted(e)
			if err != nil {
				return nil, err
			}
			b.Write(eb)
		}
		b.WriteByte(']')
		return []byte(b.String()), nil
	default:
		return json.Marshal(val)
	}
}
