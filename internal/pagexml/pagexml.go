// Package pagexml reads and rewrites PAGE-XML transcription documents.
//
// PAGE (Page Analysis and Ground-truth Elements) files carry OCR output as
// TextLine elements whose recognised text lives in a TextEquiv/Unicode
// child. The package extracts those lines in document order and writes
// corrected text back into the same elements, leaving every other byte of
// the document alone: regions, coordinates, reading order, namespaces and
// processing instructions all survive a round trip untouched.
//
// Parsing works on the raw token stream rather than a struct mapping so
// that documents with vendor extensions or unusual prefixes round-trip
// without the package having to understand them. Elements are matched by
// local name only; PAGE schema versions differ only in their namespace URI.
package pagexml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrNotPageXML is returned by [Parse] when the document's root element is
// not PcGts. Callers use it to fall back to plain-text handling.
var ErrNotPageXML = errors.New("pagexml: root element is not PcGts")

// lineRef locates one TextLine's Unicode text inside the token stream.
type lineRef struct {
	// charData indexes the CharData token holding the text, or -1 when the
	// Unicode element is empty.
	charData int

	// insertAfter indexes the Unicode StartElement token. When charData is
	// -1, replacement text is emitted right after this token.
	insertAfter int

	// pending is true until the enclosing TextLine closes. A second
	// TextEquiv inside the same TextLine replaces a pending ref.
	pending bool

	text string
}

// Document is a parsed PAGE-XML file. The zero value is not usable; obtain
// one from [Parse] or [ParseFile].
type Document struct {
	tokens []xml.Token
	lines  []lineRef
}

// Parse reads a PAGE-XML document from r.
//
// Each TextLine contributes one line of text, taken from its last direct
// TextEquiv/Unicode child. Word-level TextEquiv elements nested deeper are
// ignored, matching the convention that the line-level entry holds the
// final reading.
func Parse(r io.Reader) (*Document, error) {
	doc := &Document{}
	dec := xml.NewDecoder(r)

	// Stack of open element local names, for direct-child path matching.
	var stack []string
	// Pending line index while inside TextLine/TextEquiv/Unicode.
	inUnicode := -1

	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pagexml: parse: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) == 0 && t.Name.Local != "PcGts" {
				return nil, fmt.Errorf("%w: got <%s>", ErrNotPageXML, t.Name.Local)
			}
			stack = append(stack, t.Name.Local)
			doc.tokens = append(doc.tokens, t.Copy())

			if pathIs(stack, "TextLine", "TextEquiv", "Unicode") {
				ref := lineRef{charData: -1, insertAfter: len(doc.tokens) - 1, pending: true}
				if len(doc.lines) > 0 && doc.lines[len(doc.lines)-1].pending {
					// Later TextEquiv in the same TextLine replaces the
					// earlier reading.
					doc.lines[len(doc.lines)-1] = ref
				} else {
					doc.lines = append(doc.lines, ref)
				}
				inUnicode = len(doc.lines) - 1
			}

		case xml.EndElement:
			if len(stack) == 0 || stack[len(stack)-1] != t.Name.Local {
				return nil, fmt.Errorf("pagexml: parse: unexpected </%s>", t.Name.Local)
			}
			stack = stack[:len(stack)-1]
			doc.tokens = append(doc.tokens, t)
			if t.Name.Local == "Unicode" {
				inUnicode = -1
			}
			if t.Name.Local == "TextLine" {
				lineDone(doc)
			}

		case xml.CharData:
			cd := t.Copy()
			doc.tokens = append(doc.tokens, cd)
			if inUnicode >= 0 {
				ref := &doc.lines[inUnicode]
				ref.text += string(cd)
				if ref.charData == -1 {
					ref.charData = len(doc.tokens) - 1
				}
			}

		case xml.Comment:
			doc.tokens = append(doc.tokens, t.Copy())
		case xml.ProcInst:
			doc.tokens = append(doc.tokens, t.Copy())
		case xml.Directive:
			doc.tokens = append(doc.tokens, t.Copy())
		}
	}

	if len(stack) > 0 {
		return nil, fmt.Errorf("pagexml: parse: unexpected EOF inside <%s>", stack[len(stack)-1])
	}
	if len(doc.tokens) == 0 {
		return nil, fmt.Errorf("pagexml: parse: empty document")
	}
	return doc, nil
}

// ParseFile reads a PAGE-XML document from disk.
// LooksLikeXML reports whether data starts with an XML tag, skipping leading
// whitespace and a UTF-8 byte order mark. Callers use it to decide whether a
// payload must parse as PAGE-XML or may be treated as plain text.
func LooksLikeXML(data []byte) bool {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	data = bytes.TrimLeft(data, " \t\r\n")
	return len(data) > 0 && data[0] == '<'
}

func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("pagexml: open %q: %w", path, err)
	}
	defer f.Close()

	doc, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("pagexml: parse %q: %w", path, err)
	}
	return doc, nil
}

// Lines returns the text of every TextLine in document order, whitespace
// trimmed. Empty Unicode elements yield empty strings.
func (d *Document) Lines() []string {
	out := make([]string, len(d.lines))
	for i, ref := range d.lines {
		out[i] = strings.TrimSpace(ref.text)
	}
	return out
}

// UpdateLines replaces the text of every TextLine with the given lines.
// The slice length must match [Document.Lines].
func (d *Document) UpdateLines(lines []string) error {
	if len(lines) != len(d.lines) {
		return fmt.Errorf("pagexml: update: %d lines given, document has %d", len(lines), len(d.lines))
	}
	for i, line := range lines {
		d.lines[i].text = line
	}
	return nil
}

// WriteTo serialises the document back to PAGE-XML. Updated line text
// replaces the original Unicode content; everything else is emitted as it
// was parsed.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	replaced := make(map[int]string, len(d.lines))
	inserted := make(map[int]string)
	skip := make(map[int]bool)
	for _, ref := range d.lines {
		if ref.charData >= 0 {
			replaced[ref.charData] = ref.text
			continue
		}
		inserted[ref.insertAfter] = ref.text
	}
	// A replaced Unicode may span several CharData tokens when the source
	// interleaved comments; drop the extras so text is not duplicated.
	for _, ref := range d.lines {
		if ref.charData < 0 {
			continue
		}
		for j := ref.charData + 1; j < len(d.tokens); j++ {
			if _, ok := d.tokens[j].(xml.EndElement); ok {
				break
			}
			if _, ok := d.tokens[j].(xml.CharData); ok {
				skip[j] = true
			}
		}
	}

	var buf bytes.Buffer
	for i, tok := range d.tokens {
		if skip[i] {
			continue
		}
		if text, ok := replaced[i]; ok {
			if err := xml.EscapeText(&buf, []byte(text)); err != nil {
				return 0, fmt.Errorf("pagexml: write: %w", err)
			}
			continue
		}
		if err := writeToken(&buf, tok); err != nil {
			return 0, fmt.Errorf("pagexml: write: %w", err)
		}
		if text, ok := inserted[i]; ok {
			if err := xml.EscapeText(&buf, []byte(text)); err != nil {
				return 0, fmt.Errorf("pagexml: write: %w", err)
			}
		}
	}

	n, err := w.Write(buf.Bytes())
	if err != nil {
		return int64(n), fmt.Errorf("pagexml: write: %w", err)
	}
	return int64(n), nil
}

// WriteFile serialises the document to a file, creating or truncating it.
func (d *Document) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("pagexml: create %q: %w", path, err)
	}
	if _, err := d.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("pagexml: close %q: %w", path, err)
	}
	return nil
}

// pathIs reports whether the innermost open elements match the given
// direct-child path.
func pathIs(stack []string, path ...string) bool {
	if len(stack) < len(path) {
		return false
	}
	tail := stack[len(stack)-len(path):]
	for i := range path {
		if tail[i] != path[i] {
			return false
		}
	}
	return true
}

// lineDone seals the current TextLine so a following TextLine starts a new
// line ref.
func lineDone(doc *Document) {
	if len(doc.lines) > 0 {
		doc.lines[len(doc.lines)-1].pending = false
	}
}

// writeToken emits one raw token. Raw tokens keep namespace prefixes in
// Name.Space, so names are re-joined with a colon rather than run through
// [xml.Encoder], which would rewrite prefixes into xmlns attributes.
func writeToken(buf *bytes.Buffer, tok xml.Token) error {
	switch t := tok.(type) {
	case xml.StartElement:
		buf.WriteByte('<')
		writeName(buf, t.Name)
		for _, attr := range t.Attr {
			buf.WriteByte(' ')
			writeName(buf, attr.Name)
			buf.WriteString(`="`)
			if err := xml.EscapeText(buf, []byte(attr.Value)); err != nil {
				return err
			}
			buf.WriteByte('"')
		}
		buf.WriteByte('>')
	case xml.EndElement:
		buf.WriteString("</")
		writeName(buf, t.Name)
		buf.WriteByte('>')
	case xml.CharData:
		if err := xml.EscapeText(buf, t); err != nil {
			return err
		}
	case xml.Comment:
		buf.WriteString("<!--")
		buf.Write(t)
		buf.WriteString("-->")
	case xml.ProcInst:
		buf.WriteString("<?")
		buf.WriteString(t.Target)
		buf.WriteByte(' ')
		buf.Write(t.Inst)
		buf.WriteString("?>")
	case xml.Directive:
		buf.WriteString("<!")
		buf.Write(t)
		buf.WriteByte('>')
	default:
		return fmt.Errorf("unhandled token %T", tok)
	}
	return nil
}

func writeName(buf *bytes.Buffer, name xml.Name) {
	if name.Space != "" {
		buf.WriteString(name.Space)
		buf.WriteByte(':')
	}
	buf.WriteString(name.Local)
}
