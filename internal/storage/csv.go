package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/maltedev/dealhound/internal/models"
)

// CSVSink appends readings to a results file, writing the header only when
// the file is new or empty.
type CSVSink struct {
	file   *os.File
	writer *csv.Writer
	mu     sync.Mutex
}

func NewCSVSink(filename string) (*CSVSink, error) {
	if filename == "" {
		return nil, fmt.Errorf("results file is required")
	}
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := writer.Write(Header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write csv header: %w", err)
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flush csv header: %w", err)
		}
	}

	return &CSVSink{
		file:   f,
		writer: writer,
	}, nil
}

func (s *CSVSink) Append(ctx context.Context, reading models.ProductReading) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writer.Write(Row(reading)); err != nil {
		return fmt.Errorf("write csv record: %w", err)
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("flush csv record: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync csv file: %w", err)
	}
	return nil
}

func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		s.file.Close()
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return s.file.Close()
}
