package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/raaihank/journal-sentinel/internal/config"
	"github.com/raaihank/journal-sentinel/internal/logger"
	"github.com/raaihank/journal-sentinel/internal/privacy"
	"github.com/segmentio/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPipeline(t *testing.T, cfg config.BatchConfig) *Pipeline {
	t.Helper()
	detector, err := privacy.New(config.GetDefaults().Privacy, logger.Nop())
	require.NoError(t, err)
	return NewPipeline(detector, privacy.MaskOptions{}, cfg, zap.NewNop())
}

func decodeJSONL(t *testing.T, r io.Reader) []MaskedEntry {
	t.Helper()
	var out []MaskedEntry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		var e MaskedEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		out = append(out, e)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestPipelineJSONL(t *testing.T) {
	var in bytes.Buffer
	for i := 0; i < 50; i++ {
		text := "quiet day"
		if i%2 == 0 {
			text = fmt.Sprintf("mail user%d@example.com", i)
		}
		fmt.Fprintf(&in, `{"id":"e%d","date":"2024-05-01","text":%q}`+"\n", i, text)
	}
	in.WriteString("not json\n")
	in.WriteString(`{"id":99,"text":"call 010-1234-5678"}` + "\n")

	p := newTestPipeline(t, config.BatchConfig{WorkerCount: 4})
	var out bytes.Buffer
	result, err := p.Process(context.Background(), &in, FormatJSONL, &out, FormatJSONL)
	require.NoError(t, err)

	assert.Equal(t, int64(52), result.Total)
	assert.Equal(t, int64(51), result.Masked)
	assert.Equal(t, int64(26), result.WithPII)
	assert.Equal(t, int64(1), result.Failed)
	assert.Equal(t, int64(26), result.MaskedSpans)

	entries := decodeJSONL(t, &out)
	require.Len(t, entries, 51)
	for i := 0; i < 50; i++ {
		assert.Equal(t, fmt.Sprintf("e%d", i), entries[i].ID, "order must be preserved")
	}
	assert.Equal(t, "mail [EMAIL]", entries[0].Text)
	assert.True(t, entries[0].PIIDetected)
	assert.Equal(t, "quiet day", entries[1].Text)
	assert.Equal(t, "99", entries[50].ID)
	assert.Equal(t, "call [PHONE]", entries[50].Text)
}

func TestPipelineCSV(t *testing.T) {
	in := strings.NewReader("date,text,id\n" +
		"2024-05-01,\"주소: 부산시 해운대구\",a1\n" +
		"2024-05-02,too,many,fields\n" +
		"2024-05-03,,a3\n" +
		"2024-05-04,\"line one\nline two test@example.com\",a4\n")

	p := newTestPipeline(t, config.BatchConfig{WorkerCount: 2, SkipEmpty: true})
	var out bytes.Buffer
	result, err := p.Process(context.Background(), in, FormatCSV, &out, FormatJSONL)
	require.NoError(t, err)

	assert.Equal(t, int64(4), result.Total)
	assert.Equal(t, int64(1), result.Failed)
	assert.Equal(t, int64(1), result.Skipped)
	assert.Equal(t, int64(2), result.Masked)

	entries := decodeJSONL(t, &out)
	require.Len(t, entries, 2)
	assert.Equal(t, "a1", entries[0].ID)
	assert.Equal(t, "2024-05-01", entries[0].Date)
	assert.Equal(t, "주소: [ADDRESS]", entries[0].Text)
	assert.Equal(t, "line one\nline two [EMAIL]", entries[1].Text)

	t.Run("MissingTextColumn", func(t *testing.T) {
		_, err := p.Process(context.Background(), strings.NewReader("id,body\n1,x\n"), FormatCSV, io.Discard, FormatJSONL)
		assert.Error(t, err)
	})

	t.Run("ReadError", func(t *testing.T) {
		broken := io.MultiReader(strings.NewReader("id,text\n1,a\n"), iotest.ErrReader(errors.New("disk gone")))

		done := make(chan error, 1)
		go func() {
			_, err := p.Process(context.Background(), broken, FormatCSV, io.Discard, FormatJSONL)
			done <- err
		}()

		select {
		case err := <-done:
			require.Error(t, err)
			assert.Contains(t, err.Error(), "disk gone")
		case <-time.After(5 * time.Second):
			t.Fatal("CSV read error did not stop the reader")
		}
	})
}

func TestPipelineParquet(t *testing.T) {
	var in bytes.Buffer
	w := parquet.NewGenericWriter[Entry](&in)
	_, err := w.Write([]Entry{
		{ID: "p1", Date: "2024-05-01", Text: "서버 192.168.0.1 접속"},
		{ID: "p2", Date: "2024-05-02", Text: "nothing to hide"},
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	p := newTestPipeline(t, config.BatchConfig{WorkerCount: 2})
	var out bytes.Buffer
	result, err := p.Process(context.Background(), bytes.NewReader(in.Bytes()), FormatParquet, &out, FormatParquet)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Masked)
	assert.Equal(t, int64(1), result.WithPII)

	reader := parquet.NewReader(bytes.NewReader(out.Bytes()))
	defer reader.Close()

	var got []MaskedEntry
	for {
		var e MaskedEntry
		if err := reader.Read(&e); err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "서버 [IP] 접속", got[0].Text)
	assert.Equal(t, int64(1), got[0].MaskedCount)
	assert.Equal(t, "nothing to hide", got[1].Text)
}

func TestPipelineParquetInvalid(t *testing.T) {
	p := newTestPipeline(t, config.BatchConfig{WorkerCount: 2})

	for name, data := range map[string][]byte{
		"Garbage": []byte("this is not a parquet file at all"),
		"Empty":   {},
	} {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				_, err := p.Process(context.Background(), bytes.NewReader(data), FormatParquet, io.Discard, FormatJSONL)
				assert.Error(t, err)
			})
		})
	}
}

func TestPipelineCancelled(t *testing.T) {
	var in bytes.Buffer
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&in, `{"id":"%d","text":"a@b.co"}`+"\n", i)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestPipeline(t, config.BatchConfig{WorkerCount: 2})
	_, err := p.Process(ctx, &in, FormatJSONL, io.Discard, FormatJSONL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestProcessFile(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "export.jsonl")
	outPath := filepath.Join(dir, "masked.parquet")
	require.NoError(t, os.WriteFile(inPath, []byte(`{"id":"1","text":"홍 길동 만남"}`+"\n"), 0o600))

	p := newTestPipeline(t, config.BatchConfig{WorkerCount: 1, OutputFormat: "jsonl"})
	result, err := p.ProcessFile(context.Background(), inPath, outPath)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.WithPII)

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()

	reader := parquet.NewReader(f)
	defer reader.Close()
	var e MaskedEntry
	require.NoError(t, reader.Read(&e))
	assert.Equal(t, "[NAME] 만남", e.Text)
}

func TestDetectFileFormat(t *testing.T) {
	assert.Equal(t, FormatCSV, DetectFileFormat("export.CSV"))
	assert.Equal(t, FormatParquet, DetectFileFormat("/tmp/export.parquet"))
	assert.Equal(t, FormatJSONL, DetectFileFormat("export.ndjson"))
	assert.Equal(t, FormatJSONL, DetectFileFormat("export"))

	f, ok := ParseFileFormat("Parquet")
	assert.True(t, ok)
	assert.Equal(t, FormatParquet, f)
	_, ok = ParseFileFormat("xml")
	assert.False(t, ok)
}
