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

// ParseQA extracts question-answer pairs, one chunk per pair. CSV and TSV
// files are read as (question, answer) rows; plain text is scanned for
// "Q:" / "A:" prefixed lines, with continuation lines appended to the
// current answer. The question doubles as the chunk's embedding text.
func ParseQA(ctx context.Context, in ParseInput) ([]types.Chunk, error) {
	var pairs [][2]string
	var err error
	switch types.FileExtension(in.Filename) {
	case "csv":
		pairs, err = qaPairsFromCSV(in.Content, ',')
	case "tsv":
		pairs, err = qaPairsFromCSV(in.Content, '\t')
	default:
		pairs = qaPairsFromText(string(in.Content))
	}
	if err != nil {
		return nil, err
	}

	chunks := make([]types.Chunk, 0, len(pairs))
	for i, pair := range pairs {
		question, answer := pair[0], pair[1]
		content := question + "\n" + answer
		chunks = append(chunks, types.Chunk{
			ContentWithWeight: content,
			Questions:         []string{question},
			PageNum:           1,
			TokenNum:          in.Tokenizer.Count(content),
		})
		if in.Progress != nil {
			in.Progress(float64(i+1)/float64(len(pairs)),
				fmt.Sprintf("Extracted pair %d/%d", i+1, len(pairs)))
		}
	}
	return chunks, nil
}

func qaPairsFromCSV(content []byte, comma rune) ([][2]string, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = comma
	reader.FieldsPerRecord = -1

	var pairs [][2]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading qa rows: %w", err)
		}
		if len(record) < 2 {
			continue
		}
		question := strings.TrimSpace(record[0])
		answer := strings.TrimSpace(record[1])
		if question == "" || answer == "" {
			continue
		}
		pairs = append(pairs, [2]string{question, answer})
	}
	return pairs, nil
}

func qaPairsFromText(text string) [][2]string {
	var pairs [][2]string
	var question string
	var answer []string

	flush := func() {
		if question != "" && len(answer) > 0 {
			pairs = append(pairs, [2]string{question, strings.Join(answer, "\n")})
		}
		question = ""
		answer = nil
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Q:"):
			flush()
			question = strings.TrimSpace(strings.TrimPrefix(line, "Q:"))
		case strings.HasPrefix(line, "A:"):
			answer = append(answer, strings.TrimSpace(strings.TrimPrefix(line, "A:")))
		case line != "" && len(answer) > 0:
			answer = append(answer, line)
		}
	}
	flush()
	return pairs
}
