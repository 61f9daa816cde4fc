package document

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	blocks := Parse("# Title\n* point one\nplain line")
	require.Equal(t, []Block{
		{Kind: Heading, Level: 1, Text: "Title"},
		{Kind: Bullet, Text: "point one"},
		{Kind: Paragraph, Text: "plain line"},
	}, blocks)
}

func TestParseLevelsAndBlanks(t *testing.T) {
	text := "## Features\r\n\n### Platform\n   \n* faster API\n#no space\n*not a bullet\n"

	require.Equal(t, []Block{
		{Kind: Heading, Level: 2, Text: "Features"},
		{Kind: Heading, Level: 3, Text: "Platform"},
		{Kind: Bullet, Text: "faster API"},
		{Kind: Paragraph, Text: "#no space"},
		{Kind: Paragraph, Text: "*not a bullet"},
	}, Parse(text))

	require.Empty(t, Parse(""))
	require.Empty(t, Parse("\n\n  \n"))
}

func readPart(t *testing.T, data []byte, name string) string {
	t.Helper()

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		require.NoError(t, err)
		defer rc.Close()
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		return string(content)
	}

	t.Fatalf("part %s not found", name)
	return ""
}

func TestBuild(t *testing.T) {
	result, err := Build("Release Notes", "# Title\n* point one\nplain line & more")
	require.NoError(t, err)
	require.Equal(t, "release_notes.docx", result.Filename)
	require.Equal(t, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", result.MimeType)

	doc := readPart(t, result.Data, "word/document.xml")
	require.Regexp(t, `w:val="Title"`, doc)
	require.Regexp(t, `w:val="Heading1"`, doc)
	require.Regexp(t, `w:val="List ?Bullet"`, doc)
	require.Contains(t, doc, "Release Notes")
	require.Contains(t, doc, ">Title<")
	require.Contains(t, doc, "point one")
	require.Contains(t, doc, "plain line &amp; more")

	require.Less(t, strings.Index(doc, "Release Notes"), strings.Index(doc, ">Title<"))
	require.Less(t, strings.Index(doc, "point one"), strings.Index(doc, "plain line"))

	require.Contains(t, readPart(t, result.Data, "[Content_Types].xml"), "/word/document.xml")
}

func TestRenderDOCXWithoutTitle(t *testing.T) {
	data, err := RenderDOCX("", []Block{{Kind: Paragraph, Text: "only line"}})
	require.NoError(t, err)

	doc := readPart(t, data, "word/document.xml")
	require.Contains(t, doc, "only line")
	require.NotContains(t, doc, `w:val="Title"`)
}
