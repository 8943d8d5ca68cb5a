package batch

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/segmentio/parquet-go"
	"github.com/tidwall/gjson"
)

const maxLineBytes = 16 << 20

// readResult holds the parsed entries and how many rows were malformed
type readResult struct {
	entries []Entry
	failed  int64
}

func readEntries(r io.Reader, format FileFormat) (*readResult, error) {
	switch format {
	case FormatCSV:
		return readCSV(r)
	case FormatJSONL:
		return readJSONL(r)
	case FormatParquet:
		return readParquet(r)
	default:
		return nil, fmt.Errorf("unsupported input format: %s", format)
	}
}

// readCSV expects a header row naming at least a text column; id and date
// are optional and columns may appear in any order.
func readCSV(r io.Reader) (*readResult, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := map[string]int{"id": -1, "date": -1, "text": -1}
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		if _, ok := columns[key]; ok {
			columns[key] = i
		}
	}
	if columns["text"] < 0 {
		return nil, fmt.Errorf("CSV header has no text column: %v", header)
	}

	field := func(record []string, name string) string {
		if i := columns[name]; i >= 0 && i < len(record) {
			return record[i]
		}
		return ""
	}

	result := &readResult{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			result.failed++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		result.entries = append(result.entries, Entry{
			ID:   strings.TrimSpace(field(record, "id")),
			Date: strings.TrimSpace(field(record, "date")),
			Text: field(record, "text"),
		})
	}
	return result, nil
}

// readJSONL reads one JSON object per line. Numeric ids are kept in their
// textual form.
func readJSONL(r io.Reader) (*readResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	result := &readResult{}
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !gjson.ValidBytes(line) {
			result.failed++
			continue
		}
		fields := gjson.GetManyBytes(line, "id", "date", "text")
		if !fields[2].Exists() || fields[2].Type != gjson.String {
			result.failed++
			continue
		}
		result.entries = append(result.entries, Entry{
			ID:   fields[0].String(),
			Date: fields[1].String(),
			Text: fields[2].String(),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read JSON lines: %w", err)
	}
	return result, nil
}

func readParquet(r io.Reader) (*readResult, error) {
	readerAt, size, err := sizedReaderAt(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read Parquet input: %w", err)
	}

	file, err := parquet.OpenFile(readerAt, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open Parquet input: %w", err)
	}

	reader := parquet.NewReader(file)
	defer reader.Close()

	result := &readResult{}
	for {
		var entry Entry
		err := reader.Read(&entry)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read Parquet record: %w", err)
		}
		result.entries = append(result.entries, entry)
	}
	return result, nil
}

// sizedReaderAt returns random access to r and its length, buffering r in
// memory when it supports neither.
func sizedReaderAt(r io.Reader) (io.ReaderAt, int64, error) {
	switch v := r.(type) {
	case interface {
		io.ReaderAt
		Size() int64
	}:
		return v, v.Size(), nil
	case *os.File:
		info, err := v.Stat()
		if err != nil {
			return nil, 0, err
		}
		return v, info.Size(), nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}
