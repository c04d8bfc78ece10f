package bitable

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// CellKind tags the shape a cell arrived in.
type CellKind int

const (
	KindEmpty CellKind = iota
	KindText
	KindNumber
	KindBool
	KindList
	KindLinks
)

func (k CellKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindLinks:
		return "links"
	default:
		return "empty"
	}
}

// Link is one entry of a rich-text, person or linked-record cell.
type Link struct {
	Text string `json:"text,omitempty"`
	Name string `json:"name,omitempty"`
}

// Display returns the text, falling back to the name.
func (l Link) Display() string {
	if t := strings.TrimSpace(l.Text); t != "" {
		return t
	}
	return strings.TrimSpace(l.Name)
}

// CellValue is a decoded Bitable cell. It is built once when a record is
// decoded and keeps the raw JSON for diagnostics.
type CellValue struct {
	kind   CellKind
	text   string
	number float64
	items  []string
	links  []Link
	raw    json.RawMessage
}

// TextValue builds a text cell.
func TextValue(s string) CellValue { return CellValue{kind: KindText, text: s} }

// NumberValue builds a numeric cell.
func NumberValue(f float64) CellValue { return CellValue{kind: KindNumber, number: f} }

// ListValue builds a multi-select style cell.
func ListValue(items ...string) CellValue { return CellValue{kind: KindList, items: items} }

// LinksValue builds a person / rich-text / link cell.
func LinksValue(links ...Link) CellValue { return CellValue{kind: KindLinks, links: links} }

// Kind reports the cell shape.
func (v CellValue) Kind() CellKind { return v.kind }

// String is the normalized flat form of the cell. Absent cells yield "".
func (v CellValue) String() string {
	switch v.kind {
	case KindText:
		return strings.TrimSpace(v.text)
	case KindNumber:
		return formatNumber(v.number)
	case KindBool:
		return v.text
	case KindList, KindLinks:
		return strings.Join(v.Values(), ",")
	default:
		return ""
	}
}

// Values returns the individual normalized entries of the cell, skipping blanks.
func (v CellValue) Values() []string {
	var out []string
	switch v.kind {
	case KindList:
		for _, item := range v.items {
			if s := strings.TrimSpace(item); s != "" {
				out = append(out, s)
			}
		}
	case KindLinks:
		for _, l := range v.links {
			if s := l.Display(); s != "" {
				out = append(out, s)
			}
		}
	default:
		if s := v.String(); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Contains reports whether name equals one of the cell's entries exactly.
func (v CellValue) Contains(name string) bool {
	for _, s := range v.Values() {
		if s == name {
			return true
		}
	}
	return false
}

// Float returns the finite numeric content of the cell. Text is parsed;
// anything unparsable or non-finite reports false.
func (v CellValue) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.number, true
	case KindText:
		return parseFinite(v.text)
	case KindList, KindLinks:
		values := v.Values()
		if len(values) != 1 {
			return 0, false
		}
		return parseFinite(values[0])
	default:
		return 0, false
	}
}

// parseFinite parses s as a number. NaN and infinities are not numbers here:
// they cannot be encoded as JSON.
func parseFinite(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Normalize is the flat string form of a cell.
func Normalize(v CellValue) string {
	return v.String()
}

// UnmarshalJSON decodes any Bitable cell shape.
func (v *CellValue) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var decoded interface{}
	if err := dec.Decode(&decoded); err != nil {
		return err
	}

	*v = fromInterface(decoded)
	v.raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON re-emits the raw cell, or a synthesized form for built values.
func (v CellValue) MarshalJSON() ([]byte, error) {
	if len(v.raw) > 0 {
		return v.raw, nil
	}
	switch v.kind {
	case KindText, KindBool:
		return json.Marshal(v.String())
	case KindNumber:
		return json.Marshal(v.number)
	case KindList:
		return json.Marshal(v.items)
	case KindLinks:
		return json.Marshal(v.links)
	default:
		return []byte("null"), nil
	}
}

func fromInterface(value interface{}) CellValue {
	switch val := value.(type) {
	case nil:
		return CellValue{}
	case string:
		return CellValue{kind: KindText, text: val}
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return CellValue{kind: KindNumber, number: f}
		}
		return CellValue{kind: KindText, text: val.String()}
	case bool:
		return CellValue{kind: KindBool, text: strconv.FormatBool(val)}
	case []interface{}:
		return fromArray(val)
	case map[string]interface{}:
		return fromObject(val)
	default:
		return CellValue{}
	}
}

func fromArray(items []interface{}) CellValue {
	hasObject := false
	for _, item := range items {
		if _, ok := item.(map[string]interface{}); ok {
			hasObject = true
			break
		}
	}

	if !hasObject {
		out := CellValue{kind: KindList}
		for _, item := range items {
			if s := scalarString(item); s != "" {
				out.items = append(out.items, s)
			}
		}
		return out
	}

	out := CellValue{kind: KindLinks}
	for _, item := range items {
		switch obj := item.(type) {
		case map[string]interface{}:
			nested := fromObject(obj)
			for _, s := range nested.Values() {
				out.links = append(out.links, Link{Text: s})
			}
		default:
			if s := scalarString(item); s != "" {
				out.links = append(out.links, Link{Text: s})
			}
		}
	}
	return out
}

func fromObject(obj map[string]interface{}) CellValue {
	text, _ := obj["text"].(string)
	name, _ := obj["name"].(string)
	if strings.TrimSpace(text) != "" || strings.TrimSpace(name) != "" {
		return CellValue{kind: KindLinks, links: []Link{{Text: text, Name: name}}}
	}

	// lookup and formula cells wrap their result in {"type": n, "value": [...]}
	if inner, ok := obj["value"]; ok {
		return fromInterface(inner)
	}
	return CellValue{kind: KindLinks}
}

func scalarString(item interface{}) string {
	switch s := item.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		if f, err := s.Float64(); err == nil {
			return formatNumber(f)
		}
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
