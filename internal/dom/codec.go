package dom

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// documentPartURI is the main document body's package part.
const documentPartURI = "word/document.xml"

// OpenFromBytes parses a document package (a zip archive whose
// "word/document.xml" entry holds the serialized body) into a Document.
// Returns a FormatError-class error (wrapped by callers) if the bytes are
// not a well-formed package of this shape.
func OpenFromBytes(data []byte) (*Document, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("dom: not a valid package: %w", err)
	}

	doc := &Document{Parts: map[string][]byte{}, CoreProperties: map[string]string{}}
	var bodyXML []byte

	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("dom: open part %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("dom: read part %s: %w", f.Name, err)
		}

		switch f.Name {
		case documentPartURI:
			bodyXML = content
		case "docProps/core.xml":
			doc.CoreProperties = parseCoreProperties(content)
			doc.Parts[f.Name] = content
		default:
			doc.Parts[f.Name] = content
		}
	}

	if bodyXML == nil {
		return nil, fmt.Errorf("dom: package missing %s", documentPartURI)
	}

	body, err := decodeBody(bodyXML)
	if err != nil {
		return nil, fmt.Errorf("dom: malformed document body: %w", err)
	}
	doc.Body = body

	return doc, nil
}

// Save serializes the document back to package bytes: a zip holding the
// encoded body plus every opaque part. No [Content_Types].xml or package
// relationship part is generated; such parts appear only if they were
// carried in from the opened package as opaque parts.
func (d *Document) Save() ([]byte, error) {
	bodyXML, err := encodeBody(d.Body)
	if err != nil {
		return nil, fmt.Errorf("dom: encode body: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	names := make([]string, 0, len(d.Parts)+2)
	names = append(names, documentPartURI)
	for name := range d.Parts {
		names = append(names, name)
	}
	sort.Strings(names[1:])

	for _, name := range names {
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("dom: create part %s: %w", name, err)
		}
		var content []byte
		if name == documentPartURI {
			content = bodyXML
		} else {
			content = d.Parts[name]
		}
		if _, err := w.Write(content); err != nil {
			return nil, fmt.Errorf("dom: write part %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("dom: finalize package: %w", err)
	}
	return buf.Bytes(), nil
}

// --- token-based body codec ---
//
// The body is a heterogeneous, ordered tree (paragraphs, tables, sections,
// drawings, bookmarks, nested runs and cells...). Rather than fight
// encoding/xml's struct-tag marshaling for a variant tree, the codec walks
// a generic xml.Decoder/Encoder token stream directly and maps tag names to
// Kind via a small table, round-tripping our own attribute vocabulary.
//
// Elements and attributes are written and matched as bare, unprefixed
// names (no xmlns declarations). A prefixed vocabulary (w:p, w:tbl, ...)
// would require resolving xml.Name.Space against the declared xmlns at
// decode time rather than comparing Local against a literal "w:..." string
// — encoding/xml already resolves prefixes into (Space, Local) pairs on
// decode, so a literal prefix never survives to be matched against. Since
// this format has no real OOXML-interop requirement to carry a namespace
// at all, the simpler fix is to drop the prefix ceremony entirely.
var kindToTag = map[Kind]string{
	KindBody:      "body",
	KindParagraph: "p",
	KindHeading:   "p",
	KindTable:     "tbl",
	KindRow:       "tr",
	KindCell:      "tc",
	KindRun:       "r",
	KindDrawing:   "drawing",
	KindHyperlink: "hyperlink",
	KindBookmark:  "bookmarkStart",
	KindComment:   "commentReference",
	KindFootnote:  "footnoteReference",
	KindSection:   "sectPr",
	KindHeader:    "headerReference",
	KindFooter:    "footerReference",
	KindStyle:     "style",
}

var tagToKind = func() map[string]Kind {
	m := map[string]Kind{}
	for k, v := range kindToTag {
		if k == KindHeading {
			continue // paragraphs and headings share a tag; level attr disambiguates
		}
		m[v] = k
	}
	return m
}()

func encodeBody(body *Element) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	enc := xml.NewEncoder(&buf)
	if err := encodeElement(enc, body); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeElement(enc *xml.Encoder, e *Element) error {
	tag := kindToTag[e.Kind]
	if tag == "" {
		return fmt.Errorf("unknown element kind %q", e.Kind)
	}

	start := xml.StartElement{Name: xml.Name{Local: tag}}
	if e.ID != "" {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: "id"}, Value: e.ID})
	}
	for _, a := range attrsOf(e) {
		start.Attr = append(start.Attr, a)
	}

	if err := enc.EncodeToken(start); err != nil {
		return err
	}

	if e.Kind == KindRun && e.Text != "" {
		if err := enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: "t"}}); err != nil {
			return err
		}
		if err := enc.EncodeToken(xml.CharData(e.Text)); err != nil {
			return err
		}
		if err := enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: "t"}}); err != nil {
			return err
		}
	}

	for _, c := range e.Children {
		if err := encodeElement(enc, c); err != nil {
			return err
		}
	}

	return enc.EncodeToken(xml.EndElement{Name: start.Name})
}

func attrsOf(e *Element) []xml.Attr {
	var attrs []xml.Attr
	add := func(name, val string) {
		if val != "" {
			attrs = append(attrs, xml.Attr{Name: xml.Name{Local: name}, Value: val})
		}
	}
	if e.Kind == KindHeading {
		add("level", strconv.Itoa(e.Level))
	}
	add("style", e.StyleName)
	add("bold", boolAttr(e.Bold))
	add("italic", boolAttr(e.Italic))
	add("underline", boolAttr(e.Underline))
	add("strike", boolAttr(e.Strike))
	if e.FontSize != 0 {
		add("fontSize", strconv.Itoa(e.FontSize))
	}
	add("fontName", e.FontName)
	add("color", e.Color)
	add("alignment", e.Alignment)
	add("url", e.URL)
	add("imagePath", e.ImagePath)
	if e.Width != 0 {
		add("width", strconv.Itoa(e.Width))
	}
	if e.Height != 0 {
		add("height", strconv.Itoa(e.Height))
	}
	add("alt", e.Alt)
	add("borderStyle", e.BorderStyle)
	add("hfType", e.HFType)
	add("refName", e.RefName)
	add("pageBreak", boolAttr(e.PageBreak))
	return attrs
}

func boolAttr(b bool) string {
	if b {
		return "true"
	}
	return ""
}

func decodeBody(data []byte) (*Element, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return decodeElement(dec, start)
		}
	}
}

func decodeElement(dec *xml.Decoder, start xml.StartElement) (*Element, error) {
	// start.Name.Local is already the bare local name here: encoding/xml
	// resolves any prefix into (Space, Local) itself (it never leaves a
	// literal "w:body" in Local), and encodeElement never writes a prefix
	// or an xmlns declaration in the first place, so matching on Local
	// directly is correct without any namespace bookkeeping.
	kind, ok := tagToKind[start.Name.Local]
	if !ok {
		if start.Name.Local == "body" {
			kind = KindBody
		} else {
			return nil, fmt.Errorf("unrecognized element tag %q", start.Name.Local)
		}
	}

	e := &Element{Kind: kind}
	for _, a := range start.Attr {
		applyAttr(e, a.Name.Local, a.Value)
	}
	if kind == KindParagraph && e.Level > 0 {
		e.Kind = KindHeading
	}

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				text, err := readCharData(dec)
				if err != nil {
					return nil, err
				}
				e.Text += text
				continue
			}
			child, err := decodeElement(dec, t)
			if err != nil {
				return nil, err
			}
			child.Parent = e
			e.Children = append(e.Children, child)
		case xml.EndElement:
			return e, nil
		}
	}
}

func readCharData(dec *xml.Decoder) (string, error) {
	var out []byte
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			out = append(out, t...)
		case xml.EndElement:
			return string(out), nil
		}
	}
}

func applyAttr(e *Element, name, val string) {
	switch name {
	case "id":
		e.ID = val
	case "level":
		if n, err := strconv.Atoi(val); err == nil {
			e.Level = n
		}
	case "style":
		e.StyleName = val
	case "bold":
		e.Bold = val == "true"
	case "italic":
		e.Italic = val == "true"
	case "underline":
		e.Underline = val == "true"
	case "strike":
		e.Strike = val == "true"
	case "fontSize":
		if n, err := strconv.Atoi(val); err == nil {
			e.FontSize = n
		}
	case "fontName":
		e.FontName = val
	case "color":
		e.Color = val
	case "alignment":
		e.Alignment = val
	case "url":
		e.URL = val
	case "imagePath":
		e.ImagePath = val
	case "width":
		if n, err := strconv.Atoi(val); err == nil {
			e.Width = n
		}
	case "height":
		if n, err := strconv.Atoi(val); err == nil {
			e.Height = n
		}
	case "alt":
		e.Alt = val
	case "borderStyle":
		e.BorderStyle = val
	case "hfType":
		e.HFType = val
	case "refName":
		e.RefName = val
	case "pageBreak":
		e.PageBreak = val == "true"
	}
}

func parseCoreProperties(data []byte) map[string]string {
	props := map[string]string{}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var currentTag string
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			currentTag = t.Name.Local
		case xml.CharData:
			if currentTag != "" {
				if v := string(t); len(v) > 0 {
					props[currentTag] += v
				}
			}
		}
	}
	return props
}
