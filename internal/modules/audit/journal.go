package audit

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

var Header = []string{"timeout_user(s)_id", "reacted_user(s)_id", "original_message_author", "reason", "datetime"}

const delimiter = ';'

// Journal is an append-only CSV file with one row per moderation decision.
type Journal struct {
	mu   sync.Mutex
	path string
}

// OpenJournal creates path with the header row if it does not exist yet.
func OpenJournal(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("audit journal path is empty")
	}
	j := &Journal{path: path}
	if _, err := os.Stat(path); err == nil {
		return j, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat journal: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return j, nil
		}
		return nil, fmt.Errorf("create journal: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	writer.Comma = delimiter
	if err := writer.Write(Header); err != nil {
		return nil, fmt.Errorf("write journal header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("write journal header: %w", err)
	}
	return j, nil
}

func (j *Journal) Append(rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.OpenFile(j.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	writer.Comma = delimiter
	if err := writer.Write(rec.row()); err != nil {
		return fmt.Errorf("append journal row: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("append journal row: %w", err)
	}
	return nil
}

// ReadAll returns every row after the header in file order.
func (j *Journal) ReadAll() ([]Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.Open(j.path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.Comma = delimiter
	reader.FieldsPerRecord = len(Header)

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read journal header: %w", err)
	}

	var records []Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read journal row: %w", err)
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r Record) row() []string {
	return []string{
		joinIDs(r.Muted),
		joinIDs(r.Reacted),
		r.Author,
		string(r.Reason),
		r.CreatedAt.Format(time.RFC3339),
	}
}

func parseRow(row []string) (Record, error) {
	created, err := time.Parse(time.RFC3339, row[4])
	if err != nil {
		return Record{}, fmt.Errorf("parse journal datetime %q: %w", row[4], err)
	}
	return Record{
		Muted:     splitIDs(row[0]),
		Reacted:   splitIDs(row[1]),
		Author:    row[2],
		Reason:    Reason(row[3]),
		CreatedAt: created,
	}, nil
}

func joinIDs(ids []string) string {
	return strings.Join(ids, ",")
}

func splitIDs(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, ",")
}
