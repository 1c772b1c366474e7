package pagexml_test

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/jvbeek/palimpsest/internal/pagexml"
)

const samplePage = `<?xml version="1.0" encoding="UTF-8"?>
<PcGts xmlns="http://schema.primaresearch.org/PAGE/gts/pagecontent/2019-07-15">
  <Metadata>
    <Creator>ocr-engine</Creator>
  </Metadata>
  <Page imageFilename="scan_001.png" imageWidth="2480" imageHeight="3508">
    <TextRegion id="r1">
      <Coords points="0,0 100,0 100,50 0,50"/>
      <TextLine id="r1l1">
        <Coords points="0,0 100,0 100,25 0,25"/>
        <TextEquiv>
          <Unicode>This is a smple text.</Unicode>
        </TextEquiv>
      </TextLine>
      <TextLine id="r1l2">
        <TextEquiv>
          <Unicode>The quick brwn fox.</Unicode>
        </TextEquiv>
      </TextLine>
    </TextRegion>
    <TextRegion id="r2">
      <TextLine id="r2l1">
        <TextEquiv>
          <Unicode/>
        </TextEquiv>
      </TextLine>
    </TextRegion>
  </Page>
</PcGts>`

func TestParse_Lines(t *testing.T) {
	t.Parallel()

	doc, err := pagexml.Parse(strings.NewReader(samplePage))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := []string{"This is a smple text.", "The quick brwn fox.", ""}
	if got := doc.Lines(); !reflect.DeepEqual(got, want) {
		t.Errorf("Lines = %q, want %q", got, want)
	}
}

func TestParse_NotPageXML(t *testing.T) {
	t.Parallel()

	_, err := pagexml.Parse(strings.NewReader(`<html><body>nope</body></html>`))
	if !errors.Is(err, pagexml.ErrNotPageXML) {
		t.Errorf("Parse error = %v, want ErrNotPageXML", err)
	}
}

func TestParse_Malformed(t *testing.T) {
	t.Parallel()

	_, err := pagexml.Parse(strings.NewReader(`<PcGts><TextLine>`))
	if err == nil {
		t.Fatal("Parse accepted truncated document")
	}
}

func TestUpdateLines_RoundTrip(t *testing.T) {
	t.Parallel()

	doc, err := pagexml.Parse(strings.NewReader(samplePage))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	corrected := []string{
		"This is a ~sample text.",
		"The quick ~brown fox.",
		"[[now__SEP__legible]]",
	}
	if err := doc.UpdateLines(corrected); err != nil {
		t.Fatalf("UpdateLines: %v", err)
	}

	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	out := buf.String()

	for _, line := range corrected {
		if !strings.Contains(out, line) {
			t.Errorf("output missing corrected line %q", line)
		}
	}
	if strings.Contains(out, "smple") {
		t.Error("output still contains original OCR text")
	}

	// Structure and attributes must survive the rewrite.
	for _, fragment := range []string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		`xmlns="http://schema.primaresearch.org/PAGE/gts/pagecontent/2019-07-15"`,
		`<Coords points="0,0 100,0 100,25 0,25">`,
		`imageFilename="scan_001.png"`,
		`<TextLine id="r2l1">`,
	} {
		if !strings.Contains(out, fragment) {
			t.Errorf("output missing fragment %q", fragment)
		}
	}

	// The rewritten document must still parse with the new lines.
	doc2, err := pagexml.Parse(strings.NewReader(out))
	if err != nil {
		t.Fatalf("Parse rewritten document: %v", err)
	}
	if got := doc2.Lines(); !reflect.DeepEqual(got, corrected) {
		t.Errorf("rewritten Lines = %q, want %q", got, corrected)
	}
}

func TestUpdateLines_CountMismatch(t *testing.T) {
	t.Parallel()

	doc, err := pagexml.Parse(strings.NewReader(samplePage))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := doc.UpdateLines([]string{"only one"}); err == nil {
		t.Fatal("UpdateLines accepted wrong line count")
	}
}

func TestParse_PrefixedNamespace(t *testing.T) {
	t.Parallel()

	const prefixed = `<pc:PcGts xmlns:pc="http://schema.primaresearch.org/PAGE/gts/pagecontent/2017-07-15">
<pc:Page><pc:TextRegion><pc:TextLine><pc:TextEquiv><pc:Unicode>hallo wereld</pc:Unicode></pc:TextEquiv></pc:TextLine></pc:TextRegion></pc:Page>
</pc:PcGts>`

	doc, err := pagexml.Parse(strings.NewReader(prefixed))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := doc.Lines(); !reflect.DeepEqual(got, []string{"hallo wereld"}) {
		t.Fatalf("Lines = %q", got)
	}

	if err := doc.UpdateLines([]string{"hallo ~wereld."}); err != nil {
		t.Fatalf("UpdateLines: %v", err)
	}
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `<pc:Unicode>hallo ~wereld.</pc:Unicode>`) {
		t.Errorf("prefixed rewrite = %q", out)
	}
	if !strings.Contains(out, `xmlns:pc=`) {
		t.Error("namespace declaration dropped")
	}
}

func TestParse_LastTextEquivWins(t *testing.T) {
	t.Parallel()

	const doubled = `<PcGts><Page><TextRegion><TextLine>
<TextEquiv><Unicode>first reading</Unicode></TextEquiv>
<TextEquiv><Unicode>second reading</Unicode></TextEquiv>
</TextLine></TextRegion></Page></PcGts>`

	doc, err := pagexml.Parse(strings.NewReader(doubled))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := doc.Lines(); !reflect.DeepEqual(got, []string{"second reading"}) {
		t.Errorf("Lines = %q, want the later TextEquiv", got)
	}
}

func TestParse_WordLevelTextEquivIgnored(t *testing.T) {
	t.Parallel()

	const withWords = `<PcGts><Page><TextRegion><TextLine>
<Word><TextEquiv><Unicode>word</Unicode></TextEquiv></Word>
<TextEquiv><Unicode>whole line</Unicode></TextEquiv>
</TextLine></TextRegion></Page></PcGts>`

	doc, err := pagexml.Parse(strings.NewReader(withWords))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := doc.Lines(); !reflect.DeepEqual(got, []string{"whole line"}) {
		t.Errorf("Lines = %q, want only the line-level TextEquiv", got)
	}
}

func TestWriteTo_EscapesText(t *testing.T) {
	t.Parallel()

	const page = `<PcGts><Page><TextRegion><TextLine><TextEquiv><Unicode>a</Unicode></TextEquiv></TextLine></TextRegion></Page></PcGts>`

	doc, err := pagexml.Parse(strings.NewReader(page))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := doc.UpdateLines([]string{`a < b & "c"`}); err != nil {
		t.Fatalf("UpdateLines: %v", err)
	}
	var buf bytes.Buffer
	if _, err := doc.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if strings.Contains(buf.String(), "a < b") {
		t.Errorf("output not escaped: %q", buf.String())
	}
	doc2, err := pagexml.Parse(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("Parse rewritten: %v", err)
	}
	if got := doc2.Lines(); got[0] != `a < b & "c"` {
		t.Errorf("round-tripped line = %q", got[0])
	}
}

func TestLooksLikeXML(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		data string
		want bool
	}{
		{"declaration", `<?xml version="1.0"?><PcGts/>`, true},
		{"leading whitespace", "\n  <PcGts/>", true},
		{"bom", "\xef\xbb\xbf<PcGts/>", true},
		{"plain text", "the quick brown fox", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		if got := pagexml.LooksLikeXML([]byte(tc.data)); got != tc.want {
			t.Errorf("%s: LooksLikeXML = %v, want %v", tc.name, got, tc.want)
		}
	}
}
