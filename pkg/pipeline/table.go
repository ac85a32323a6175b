package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dallisoft/ingest-backend/pkg/types"
)

// ParseTable extracts tabular rows. The first row is the header; every data
// row is rendered as "header: value" fields so a row stays meaningful
// without its neighbors. Rows are packed into token-bounded chunks; a row
// larger than the budget has no interior boundary to respect, so it is
// hard-split.
func ParseTable(ctx context.Context, in ParseInput) ([]types.Chunk, error) {
	comma := ','
	if types.FileExtension(in.Filename) == "tsv" {
		comma = '\t'
	}
	reader := csv.NewReader(bytes.NewReader(in.Content))
	reader.Comma = comma
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading table header: %w", err)
	}

	var rows []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading table rows: %w", err)
		}
		if row := renderRow(header, record); row != "" {
			rows = append(rows, row)
		}
	}

	budget := in.Config.ChunkTokenNum
	var segments []string
	for _, row := range rows {
		if in.Tokenizer.Count(row) > budget {
			segments = append(segments, HardSplit(row, in.Tokenizer, budget)...)
			continue
		}
		segments = append(segments, row)
	}

	var chunks []types.Chunk
	merged := MergeSegments(segments, in.Tokenizer, budget, 0)
	for i, content := range merged {
		chunks = append(chunks, types.Chunk{
			ContentWithWeight: content,
			PageNum:           1,
			TokenNum:          in.Tokenizer.Count(content),
		})
		if in.Progress != nil {
			in.Progress(float64(i+1)/float64(len(merged)),
				fmt.Sprintf("Extracted rows %d/%d", i+1, len(merged)))
		}
	}
	return chunks, nil
}

func renderRow(header, record []string) string {
	var fields []string
	for i, value := range record {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		name := fmt.Sprintf("col%d", i+1)
		if i < len(header) && strings.TrimSpace(header[i]) != "" {
			name = strings.TrimSpace(header[i])
		}
		fields = append(fields, name+": "+value)
	}
	return strings.Join(fields, "; ")
}
