package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"linscore/internal/score"
)

const timeLayout = "2006-01-02 15:04:05"

type line struct {
	Time   string             `json:"time"`
	Run    string             `json:"run"`
	Key    any                `json:"key"`
	Scores map[string]float64 `json:"scores"`
}

// JSONRepository archives scoring results as JSON lines in a file rotated and
// compressed by lumberjack. Each scored entity becomes one line:
//
//	{"time":"2024-05-01 08:00:00","run":"<uuid>","key":"S1","scores":{"score_global":0.7}}
type JSONRepository struct {
	lumberjack *lumberjack.Logger
	mu         sync.Mutex
	now        func() time.Time
}

// NewJSONRepository creates an archive writing to file, rotated every maxSize megabytes
// and keeping at most maxBackups old files.
func NewJSONRepository(file string, maxSize, maxBackups int) *JSONRepository {
	return &JSONRepository{
		lumberjack: &lumberjack.Logger{
			Filename:   file,
			MaxSize:    maxSize,
			MaxBackups: maxBackups,
			Compress:   true,
		},
		now: time.Now,
	}
}

// Append writes one line per row of table. Rows are encoded before anything is written,
// so a table that cannot be encoded leaves the archive untouched.
func (r *JSONRepository) Append(ctx context.Context, runID string, table *score.ScoresTable) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ts := r.now().Format(timeLayout)
	var buf bytes.Buffer
	for _, row := range table.Rows {
		scores := make(map[string]float64, len(table.Columns))
		for j, c := range table.Columns {
			scores[c] = row.Values[j]
		}

		data, err := json.Marshal(line{Time: ts, Run: runID, Key: row.Key, Scores: scores})
		if err != nil {
			return fmt.Errorf("run %s key %v: %w", runID, row.Key, err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}

	if buf.Len() == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.lumberjack.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}
	return nil
}

// Close closes the current file.
func (r *JSONRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lumberjack.Close()
}
