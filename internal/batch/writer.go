package batch

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/segmentio/parquet-go"
)

func writeEntries(w io.Writer, format FileFormat, entries []MaskedEntry) error {
	switch format {
	case FormatJSONL:
		return writeJSONL(w, entries)
	case FormatParquet:
		return writeParquet(w, entries)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func writeJSONL(w io.Writer, entries []MaskedEntry) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range entries {
		if err := enc.Encode(&entries[i]); err != nil {
			return fmt.Errorf("failed to write entry %s: %w", entries[i].ID, err)
		}
	}
	return nil
}

func writeParquet(w io.Writer, entries []MaskedEntry) error {
	writer := parquet.NewGenericWriter[MaskedEntry](w)
	if _, err := writer.Write(entries); err != nil {
		return fmt.Errorf("failed to write Parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finish Parquet file: %w", err)
	}
	return nil
}
