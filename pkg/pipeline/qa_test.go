package pipeline

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/dallisoft/ingest-backend/pkg/types"
)

func TestParseQA(t *testing.T) {
	c := qt.New(t)
	cfg := types.ParserConfig{}.WithDefaults()

	c.Run("text with Q/A markers", func(c *qt.C) {
		content := []byte(`Q: What is a knowledge base?
A: A collection of indexed documents.
It supports semantic retrieval.

Q: How big can a file be?
A: Up to the configured ceiling.`)

		chunks, err := ParseQA(context.Background(), ParseInput{
			Filename:  "faq.txt",
			Content:   content,
			Config:    cfg,
			Tokenizer: wordTokenizer{},
		})
		c.Assert(err, qt.IsNil)
		c.Assert(chunks, qt.HasLen, 2)

		c.Assert(chunks[0].Questions, qt.DeepEquals, []string{"What is a knowledge base?"})
		c.Assert(chunks[0].ContentWithWeight, qt.Equals,
			"What is a knowledge base?\nA collection of indexed documents.\nIt supports semantic retrieval.")
		// The question doubles as the embedding text.
		c.Assert(chunks[0].EmbeddingText(), qt.Equals, "What is a knowledge base?")
		c.Assert(chunks[1].Questions, qt.DeepEquals, []string{"How big can a file be?"})
	})

	c.Run("csv rows", func(c *qt.C) {
		content := []byte("What is X?,X is a thing\nWhat is Y?,Y is another thing\n,missing question\n")
		chunks, err := ParseQA(context.Background(), ParseInput{
			Filename:  "faq.csv",
			Content:   content,
			Config:    cfg,
			Tokenizer: wordTokenizer{},
		})
		c.Assert(err, qt.IsNil)
		c.Assert(chunks, qt.HasLen, 2)
		c.Assert(chunks[0].Questions, qt.DeepEquals, []string{"What is X?"})
		c.Assert(chunks[1].ContentWithWeight, qt.Equals, "What is Y?\nY is another thing")
	})

	c.Run("pair without answer dropped", func(c *qt.C) {
		chunks, err := ParseQA(context.Background(), ParseInput{
			Filename:  "faq.txt",
			Content:   []byte("Q: Orphan question"),
			Config:    cfg,
			Tokenizer: wordTokenizer{},
		})
		c.Assert(err, qt.IsNil)
		c.Assert(chunks, qt.HasLen, 0)
	})
}

func TestParseTable(t *testing.T) {
	c := qt.New(t)

	c.Run("rows rendered with headers", func(c *qt.C) {
		content := []byte("name,role\nAda,engineer\nGrace,admiral\n")
		chunks, err := ParseTable(context.Background(), ParseInput{
			Filename:  "people.csv",
			Content:   content,
			Config:    types.ParserConfig{ChunkTokenNum: 4}.WithDefaults(),
			Tokenizer: wordTokenizer{},
		})
		c.Assert(err, qt.IsNil)
		c.Assert(chunks, qt.HasLen, 2)
		c.Assert(chunks[0].ContentWithWeight, qt.Equals, "name: Ada; role: engineer")
		c.Assert(chunks[1].ContentWithWeight, qt.Equals, "name: Grace; role: admiral")
	})

	c.Run("rows pack into the token budget", func(c *qt.C) {
		content := []byte("name,role\nAda,engineer\nGrace,admiral\n")
		chunks, err := ParseTable(context.Background(), ParseInput{
			Filename:  "people.csv",
			Content:   content,
			Config:    types.ParserConfig{ChunkTokenNum: 16}.WithDefaults(),
			Tokenizer: wordTokenizer{},
		})
		c.Assert(err, qt.IsNil)
		c.Assert(chunks, qt.HasLen, 1)
	})

	c.Run("empty file", func(c *qt.C) {
		chunks, err := ParseTable(context.Background(), ParseInput{
			Filename:  "empty.csv",
			Content:   nil,
			Config:    types.ParserConfig{}.WithDefaults(),
			Tokenizer: wordTokenizer{},
		})
		c.Assert(err, qt.IsNil)
		c.Assert(chunks, qt.HasLen, 0)
	})
}
