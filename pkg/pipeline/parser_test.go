package pipeline

import (
	"context"
	"testing"

	qt "github.com/frankban/quicktest"

	errorsx "github.com/dallisoft/ingest-backend/pkg/errors"
	"github.com/dallisoft/ingest-backend/pkg/types"
)

func TestRegistryResolve(t *testing.T) {
	c := qt.New(t)
	registry := NewRegistry()

	for _, id := range []types.ParserID{
		types.ParserNaive,
		types.ParserQA,
		types.ParserTable,
		types.ParserPaper,
		types.ParserPresentation,
	} {
		fn, err := registry.Resolve(id)
		c.Assert(err, qt.IsNil)
		c.Assert(fn, qt.IsNotNil)
	}

	_, err := registry.Resolve("unknown")
	c.Assert(err, qt.ErrorIs, errorsx.ErrUnsupportedFormat)
	c.Assert(errorsx.IsPermanent(err), qt.IsTrue)
}

func TestRegistryResolveForFile(t *testing.T) {
	c := qt.New(t)
	registry := NewRegistry()

	c.Run("pinned parser wins over extension", func(c *qt.C) {
		fn, err := registry.ResolveForFile(types.ParserQA, "pairs.csv")
		c.Assert(err, qt.IsNil)
		c.Assert(fn, qt.IsNotNil)
	})

	c.Run("extension fallback when no parser pinned", func(c *qt.C) {
		for _, tc := range []struct {
			filename string
		}{
			{"notes.txt"},
			{"README.md"},
			{"rows.csv"},
			{"rows.tsv"},
			{"scan.png"},
			{"Photo.JPEG"},
		} {
			fn, err := registry.ResolveForFile("", tc.filename)
			c.Assert(err, qt.IsNil, qt.Commentf("filename %s", tc.filename))
			c.Assert(fn, qt.IsNotNil)
		}
	})

	c.Run("unknown extension is terminal", func(c *qt.C) {
		_, err := registry.ResolveForFile("", "archive.zip")
		c.Assert(err, qt.ErrorIs, errorsx.ErrUnsupportedFormat)
		c.Assert(errorsx.IsPermanent(err), qt.IsTrue)
	})
}

func TestRegistryRegisterCustomStrategy(t *testing.T) {
	c := qt.New(t)
	registry := NewRegistry()

	called := false
	registry.Register("custom", func(ctx context.Context, in ParseInput) ([]types.Chunk, error) {
		called = true
		return nil, nil
	})

	fn, err := registry.Resolve("custom")
	c.Assert(err, qt.IsNil)
	_, err = fn(context.Background(), ParseInput{})
	c.Assert(err, qt.IsNil)
	c.Assert(called, qt.IsTrue)
}

func TestSplitPages(t *testing.T) {
	c := qt.New(t)

	text := "page one\fpage two\fpage three"

	c.Run("all pages", func(c *qt.C) {
		pages := splitPages(text, 0, 0)
		c.Assert(pages, qt.HasLen, 3)
		c.Assert(pages[0].num, qt.Equals, 1)
		c.Assert(pages[2].num, qt.Equals, 3)
		c.Assert(pages[2].text, qt.Equals, "page three")
	})

	c.Run("page range keeps original numbering", func(c *qt.C) {
		pages := splitPages(text, 1, 2)
		c.Assert(pages, qt.HasLen, 1)
		c.Assert(pages[0].num, qt.Equals, 2)
		c.Assert(pages[0].text, qt.Equals, "page two")
	})

	c.Run("blank pages dropped", func(c *qt.C) {
		pages := splitPages("one\f \fthree", 0, 0)
		c.Assert(pages, qt.HasLen, 2)
		c.Assert(pages[1].num, qt.Equals, 3)
	})
}

func TestParseNaive(t *testing.T) {
	c := qt.New(t)
	cfg := types.ParserConfig{ChunkTokenNum: 6, Delimiter: "\n"}.WithDefaults()

	c.Run("chunks never span page boundaries", func(c *qt.C) {
		in := ParseInput{
			Filename:  "doc.txt",
			Content:   []byte("one two\nthree four\ffive six\nseven eight"),
			Config:    cfg,
			Tokenizer: wordTokenizer{},
		}
		chunks, err := ParseNaive(context.Background(), in)
		c.Assert(err, qt.IsNil)
		c.Assert(chunks, qt.HasLen, 2)
		c.Assert(chunks[0].PageNum, qt.Equals, 1)
		c.Assert(chunks[0].ContentWithWeight, qt.Equals, "one two\nthree four")
		c.Assert(chunks[1].PageNum, qt.Equals, 2)
		c.Assert(chunks[1].ContentWithWeight, qt.Equals, "five six\nseven eight")
	})

	c.Run("three page document round trip", func(c *qt.C) {
		in := ParseInput{
			Filename:  "doc.txt",
			Content:   []byte("alpha beta\fgamma delta\fepsilon zeta"),
			Config:    cfg,
			Tokenizer: wordTokenizer{},
		}
		chunks, err := ParseNaive(context.Background(), in)
		c.Assert(err, qt.IsNil)
		c.Assert(chunks, qt.HasLen, 3)
		for i, chunk := range chunks {
			c.Assert(chunk.PageNum, qt.Equals, i+1)
			c.Assert(chunk.TokenNum, qt.Equals, 2)
		}
	})

	c.Run("reports extraction progress", func(c *qt.C) {
		var fractions []float64
		in := ParseInput{
			Filename:  "doc.txt",
			Content:   []byte("a\fb"),
			Config:    cfg,
			Tokenizer: wordTokenizer{},
			Progress: func(fraction float64, msg string) {
				fractions = append(fractions, fraction)
			},
		}
		_, err := ParseNaive(context.Background(), in)
		c.Assert(err, qt.IsNil)
		c.Assert(fractions, qt.DeepEquals, []float64{0.5, 1})
	})
}

func TestParsePresentation(t *testing.T) {
	c := qt.New(t)

	in := ParseInput{
		Filename:  "deck.txt",
		Content:   []byte("slide one has quite a lot of words on it really\fslide two"),
		Config:    types.ParserConfig{ChunkTokenNum: 3}.WithDefaults(),
		Tokenizer: wordTokenizer{},
	}
	chunks, err := ParsePresentation(context.Background(), in)
	c.Assert(err, qt.IsNil)

	// One chunk per slide even above the token budget.
	c.Assert(chunks, qt.HasLen, 2)
	c.Assert(chunks[0].TokenNum > 3, qt.IsTrue)
	c.Assert(chunks[1].ContentWithWeight, qt.Equals, "slide two")
	c.Assert(chunks[1].PageNum, qt.Equals, 2)
}
