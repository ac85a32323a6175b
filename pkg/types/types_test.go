package types

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestParserConfigWithDefaults(t *testing.T) {
	c := qt.New(t)

	c.Run("fills unset fields", func(c *qt.C) {
		cfg := ParserConfig{}.WithDefaults()
		c.Assert(cfg.ChunkTokenNum, qt.Equals, DefaultChunkTokenNum)
		c.Assert(cfg.Delimiter, qt.Equals, DefaultDelimiter)
		c.Assert(cfg.TitleWeight, qt.Equals, DefaultTitleWeight)
	})

	c.Run("keeps explicit values", func(c *qt.C) {
		cfg := ParserConfig{ChunkTokenNum: 128, Delimiter: "\n", TitleWeight: 0.3}.WithDefaults()
		c.Assert(cfg.ChunkTokenNum, qt.Equals, 128)
		c.Assert(cfg.Delimiter, qt.Equals, "\n")
		c.Assert(cfg.TitleWeight, qt.Equals, 0.3)
	})
}

func TestChunkEmbeddingText(t *testing.T) {
	c := qt.New(t)

	c.Run("content by default", func(c *qt.C) {
		chunk := Chunk{ContentWithWeight: "the content"}
		c.Assert(chunk.EmbeddingText(), qt.Equals, "the content")
	})

	c.Run("questions take precedence", func(c *qt.C) {
		chunk := Chunk{
			ContentWithWeight: "the content",
			Questions:         []string{"what is it?", "why is it?"},
		}
		c.Assert(chunk.EmbeddingText(), qt.Equals, "what is it?\nwhy is it?")
	})
}

func TestFileExtension(t *testing.T) {
	c := qt.New(t)

	testcases := []struct {
		filename string
		want     string
	}{
		{"report.PDF", "pdf"},
		{"notes.md", "md"},
		{"archive.tar.gz", "gz"},
		{"noextension", ""},
		{"trailing.", ""},
	}

	for _, tc := range testcases {
		c.Assert(FileExtension(tc.filename), qt.Equals, tc.want, qt.Commentf("filename %q", tc.filename))
	}
}
