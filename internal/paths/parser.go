package paths

import (
	"strconv"
	"strings"

	"docsession/internal/docerr"
)

// Parse parses a path string per the §4.2 grammar, then validates it
// against the nesting schema. Returns ParseError for malformed syntax and
// SchemaError for structural violations; both carry the offending segment.
func Parse(raw string) (*Path, error) {
	if raw == "" || raw[0] != '/' {
		return nil, docerr.New(docerr.KindParseError, "parse", raw, "a path must start with \"/\"", nil)
	}

	parts := strings.Split(raw[1:], "/")
	if len(parts) == 0 || (len(parts) == 1 && parts[0] == "") {
		return nil, docerr.New(docerr.KindParseError, "parse", raw, "a path must contain at least one segment", nil)
	}

	segs := make([]Segment, 0, len(parts))
	for i := 0; i < len(parts); i++ {
		part := parts[i]
		if part == "" {
			return nil, docerr.New(docerr.KindParseError, "parse", raw, "empty segment between consecutive \"/\"", nil)
		}
		seg, err := parseSegment(part, raw)
		if err != nil {
			return nil, err
		}
		// "/children/N" is the positional form of "children[N]".
		if seg.Name == NameChildren && seg.Selector.Kind == SelNone && i+1 < len(parts) {
			if n, err := strconv.Atoi(parts[i+1]); err == nil {
				seg.Selector = Selector{Kind: SelIndex, Index: n}
				seg.raw = part + "/" + parts[i+1]
				i++
			}
		}
		segs = append(segs, seg)
	}

	if segs[0].Name != NameBody {
		return nil, docerr.New(docerr.KindParseError, "parse", raw, "a path must be rooted at \"/body\"", nil)
	}

	p := &Path{Segments: segs, raw: raw}
	if err := validateSchema(p); err != nil {
		return nil, err
	}
	return p, nil
}

func parseSegment(part, raw string) (Segment, error) {
	name := part
	var selRaw string
	if i := strings.IndexByte(part, '['); i >= 0 {
		if !strings.HasSuffix(part, "]") {
			return Segment{}, docerr.New(docerr.KindParseError, "parse", raw,
				"unterminated selector in segment \""+part+"\"", nil)
		}
		name = part[:i]
		selRaw = part[i+1 : len(part)-1]
	}

	sn := SegmentName(name)
	if !validNames[sn] {
		return Segment{}, docerr.New(docerr.KindParseError, "parse", raw,
			"unknown segment name \""+name+"\"", nil)
	}

	seg := Segment{Name: sn, raw: part}
	if selRaw == "" {
		return seg, nil
	}

	sel, err := parseSelector(selRaw, raw, sn)
	if err != nil {
		return Segment{}, err
	}
	seg.Selector = sel
	return seg, nil
}

func parseSelector(s, raw string, name SegmentName) (Selector, error) {
	switch {
	case s == "*":
		return Selector{Kind: SelWildcard}, nil

	case strings.HasPrefix(s, "id='") && strings.HasSuffix(s, "'") && len(s) >= 5:
		return Selector{Kind: SelID, Str: s[4 : len(s)-1]}, nil

	case strings.HasPrefix(s, "text~='") && strings.HasSuffix(s, "'") && len(s) >= 8:
		return Selector{Kind: SelTextContains, Str: s[7 : len(s)-1]}, nil

	case strings.HasPrefix(s, "text='") && strings.HasSuffix(s, "'") && len(s) >= 7:
		return Selector{Kind: SelText, Str: s[6 : len(s)-1]}, nil

	case strings.HasPrefix(s, "style='") && strings.HasSuffix(s, "'") && len(s) >= 8:
		return Selector{Kind: SelStyle, Str: s[7 : len(s)-1]}, nil

	case strings.HasPrefix(s, "level="):
		if name != NameHeading {
			return Selector{}, docerr.New(docerr.KindSchemaError, "parse", raw,
				"level= selector only applies to heading segments", nil)
		}
		n, err := strconv.Atoi(strings.TrimPrefix(s, "level="))
		if err != nil {
			return Selector{}, docerr.New(docerr.KindParseError, "parse", raw,
				"level= selector requires an integer", nil)
		}
		return Selector{Kind: SelLevel, Index: n}, nil

	case strings.HasPrefix(s, "type="):
		if name != NameHeader && name != NameFooter {
			return Selector{}, docerr.New(docerr.KindSchemaError, "parse", raw,
				"type= selector only applies to header/footer segments", nil)
		}
		v := strings.TrimPrefix(s, "type=")
		if v != "default" && v != "first" && v != "even" {
			return Selector{}, docerr.New(docerr.KindParseError, "parse", raw,
				"type= selector must be one of default|first|even", nil)
		}
		return Selector{Kind: SelType, Str: v}, nil

	default:
		n, err := strconv.Atoi(s)
		if err != nil {
			return Selector{}, docerr.New(docerr.KindParseError, "parse", raw,
				"malformed selector \""+s+"\"", nil)
		}
		return Selector{Kind: SelIndex, Index: n}, nil
	}
}
