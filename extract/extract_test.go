package extract

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/poiesic/kbase/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildPDF assembles a minimal PDF with one Helvetica text line per page.
func buildPDF(pages ...string) []byte {
	var objects []string
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>",
	)
	for i, text := range pages {
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestExtract_StructuredPDF(t *testing.T) {
	e := New()
	result, err := e.Extract(buildPDF("First page text", "Second page text"))
	require.NoError(t, err)

	assert.Equal(t, ModeStructured, result.Mode)
	assert.NoError(t, result.ParseError)
	assert.Contains(t, result.Text, "First")
	assert.Contains(t, result.Text, "Second")
	assert.Contains(t, result.Text, pageSeparator)
	require.Equal(t, 2, result.PageCount())
	assert.Equal(t, core.PageBoundary{Page: 1, Offset: 0}, result.Pages[0])
	assert.Equal(t, 2, result.Pages[1].Page)
	assert.Equal(t, strings.Index(result.Text, pageSeparator)+len(pageSeparator), result.Pages[1].Offset)
}

func TestExtract_FallbackForNonPDF(t *testing.T) {
	e := New()
	result, err := e.Extract([]byte("  Plain text upload. Second sentence!  "))
	require.NoError(t, err)

	assert.Equal(t, ModeRawFallback, result.Mode)
	assert.Error(t, result.ParseError)
	assert.Equal(t, "Plain text upload. Second sentence!", result.Text)
	assert.Equal(t, []core.PageBoundary{{Page: 1, Offset: 0}}, result.Pages)
}

func TestExtract_FallbackForCorruptPDF(t *testing.T) {
	data := buildPDF("Hello")
	corrupt := append([]byte(nil), data[:len(data)/2]...)

	result, err := New().Extract(corrupt)
	require.NoError(t, err)
	assert.Equal(t, ModeRawFallback, result.Mode)
	assert.True(t, strings.HasPrefix(result.Text, "%PDF-1.4"))
}

func TestExtract_FallbackIsSanitized(t *testing.T) {
	result, err := New().Extract([]byte("a\x00b\x07c\x7fd\te\xff"))
	require.NoError(t, err)
	assert.Equal(t, ModeRawFallback, result.Mode)
	assert.Equal(t, "abcd\te", result.Text)
}

func TestExtract_NoExtractableText(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty input", nil},
		{"whitespace only", []byte(" \n\t ")},
		{"control characters only", []byte{0x00, 0x01, 0x1f, 0x7f}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Extract(tt.data)
			assert.ErrorIs(t, err, core.ErrNoExtractableText)
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"keeps tab newline carriage return", "a\tb\nc\rd", "a\tb\nc\rd"},
		{"strips NUL", "a\x00b", "ab"},
		{"strips C0 range", "\x01\x02\x1b\x1fx", "x"},
		{"strips DEL", "x\x7fy", "xy"},
		{"keeps unicode", "naïve – ok", "naïve – ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Sanitize(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Sanitize(got))
		})
	}
}
