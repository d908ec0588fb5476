package patch

import (
	"encoding/json"
	"fmt"

	"docsession/internal/dom"
	"docsession/internal/docerr"
)

// Value is the decoded form of a patch operation's `value` field, tagged
// by `type` per §4.3 "Value taxonomy".
type Value struct {
	Type string `json:"type"`

	// paragraph / heading / hyperlink / list item text
	Text string `json:"text"`
	// paragraph style id (optional, applies to the paragraph type only;
	// headings ignore it)
	Style string `json:"style"`

	// heading
	Level int `json:"level"`

	// table
	Rows        [][]string `json:"rows"`
	Headers     []string   `json:"headers"`
	BorderStyle string     `json:"border_style"`

	// image
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Alt    string `json:"alt"`

	// hyperlink
	URL string `json:"url"`

	// list
	Items   []string `json:"items"`
	Ordered bool     `json:"ordered"`

	// style (applied onto a resolved ResultStyleProperties target)
	Bold      *bool   `json:"bold"`
	Italic    *bool   `json:"italic"`
	Underline *bool   `json:"underline"`
	Strike    *bool   `json:"strike"`
	FontSize  *int    `json:"font_size"`
	FontName  *string `json:"font_name"`
	Color     *string `json:"color"`
	Alignment *string `json:"alignment"`
}

// ParseValue decodes raw JSON into a Value, per the discriminator in
// op.Type — the caller already knows which op it belongs to.
func ParseValue(raw json.RawMessage) (*Value, error) {
	if len(raw) == 0 {
		return nil, docerr.New(docerr.KindParseError, "value", "", "value is required", nil)
	}
	var v Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, docerr.New(docerr.KindParseError, "value", "", "malformed value JSON", err)
	}
	return &v, nil
}

// Materialize builds the DOM subtree described by v. Returns SchemaError
// if v.Type is not one of the recognized value shapes or required fields
// are missing for that shape.
func Materialize(v *Value) (*dom.Element, error) {
	switch v.Type {
	case "paragraph":
		p := dom.NewElement(dom.KindParagraph)
		p.StyleName = v.Style
		p.Children = []*dom.Element{textRun(p, v.Text)}
		return p, nil

	case "heading":
		if v.Level < 1 || v.Level > 9 {
			return nil, docerr.New(docerr.KindSchemaError, "materialize", "", "heading level must be in 1..9", nil)
		}
		h := dom.NewElement(dom.KindHeading)
		h.Level = v.Level
		h.Children = []*dom.Element{textRun(h, v.Text)}
		return h, nil

	case "table":
		return materializeTable(v)

	case "image":
		if v.Path == "" {
			return nil, docerr.New(docerr.KindSchemaError, "materialize", "", "image value requires \"path\"", nil)
		}
		d := dom.NewElement(dom.KindDrawing)
		d.ImagePath = v.Path
		d.Width = v.Width
		d.Height = v.Height
		d.Alt = v.Alt
		return d, nil

	case "hyperlink":
		if v.URL == "" {
			return nil, docerr.New(docerr.KindSchemaError, "materialize", "", "hyperlink value requires \"url\"", nil)
		}
		link := dom.NewElement(dom.KindHyperlink)
		link.URL = v.URL
		link.Children = []*dom.Element{textRun(link, v.Text)}
		return link, nil

	case "list":
		// A list materializes to a run of sibling paragraphs, not a single
		// element; callers that accept multi-element inserts (applyAdd) use
		// MaterializeList directly instead of this single-element path.
		return nil, docerr.New(docerr.KindSchemaError, "materialize", "",
			"list values must be applied via add, not a single-element context", nil)

	case "page_break":
		p := dom.NewElement(dom.KindParagraph)
		p.PageBreak = true
		return p, nil

	default:
		return nil, docerr.New(docerr.KindSchemaError, "materialize", "",
			fmt.Sprintf("unrecognized value type %q", v.Type), nil)
	}
}

func textRun(parent *dom.Element, text string) *dom.Element {
	r := dom.NewElement(dom.KindRun)
	r.Text = text
	r.Parent = parent
	return r
}

func materializeTable(v *Value) (*dom.Element, error) {
	if len(v.Rows) == 0 {
		return nil, docerr.New(docerr.KindSchemaError, "materialize", "", "table value requires non-empty \"rows\"", nil)
	}
	table := dom.NewElement(dom.KindTable)
	table.BorderStyle = v.BorderStyle

	addRow := func(cells []string) {
		row := dom.NewElement(dom.KindRow)
		row.Parent = table
		for _, text := range cells {
			cell := dom.NewElement(dom.KindCell)
			cell.Parent = row
			p := dom.NewElement(dom.KindParagraph)
			p.Parent = cell
			p.Children = []*dom.Element{textRun(p, text)}
			cell.Children = []*dom.Element{p}
			row.Children = append(row.Children, cell)
		}
		table.Children = append(table.Children, row)
	}

	if len(v.Headers) > 0 {
		addRow(v.Headers)
	}
	for _, row := range v.Rows {
		addRow(row)
	}
	return table, nil
}

// MaterializeList returns one paragraph per item for a "list" value,
// every one carrying the same bullet/numbered style.
func MaterializeList(v *Value) ([]*dom.Element, error) {
	if v.Type != "list" {
		return nil, docerr.New(docerr.KindSchemaError, "materialize", "", "MaterializeList requires a list value", nil)
	}
	if len(v.Items) == 0 {
		return nil, docerr.New(docerr.KindSchemaError, "materialize", "", "list value requires non-empty \"items\"", nil)
	}
	style := "ListBullet"
	if v.Ordered {
		style = "ListNumber"
	}
	out := make([]*dom.Element, 0, len(v.Items))
	for _, text := range v.Items {
		p := dom.NewElement(dom.KindParagraph)
		p.StyleName = style
		p.Children = []*dom.Element{textRun(p, text)}
		out = append(out, p)
	}
	return out, nil
}

// ApplyStyleProperties overlays non-nil fields from v onto target's
// formatting properties, per the "style" value shape applied to a
// ResultStyleProperties resolution.
func ApplyStyleProperties(target *dom.Element, v *Value) {
	if v.Bold != nil {
		target.Bold = *v.Bold
	}
	if v.Italic != nil {
		target.Italic = *v.Italic
	}
	if v.Underline != nil {
		target.Underline = *v.Underline
	}
	if v.Strike != nil {
		target.Strike = *v.Strike
	}
	if v.FontSize != nil {
		target.FontSize = *v.FontSize
	}
	if v.FontName != nil {
		target.FontName = *v.FontName
	}
	if v.Color != nil {
		target.Color = *v.Color
	}
	if v.Alignment != nil {
		target.Alignment = *v.Alignment
	}
}
