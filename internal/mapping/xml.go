package mapping

import (
	"encoding/xml"
	"strings"
)

// flattenXML walks the document and records the first text value seen at each
// dotted element path ("playlist.track.title" etc). Attribute values are
// ignored; CDATA arrives as character data and is kept.
func flattenXML(body string) (map[string]string, error) {
	decoder := xml.NewDecoder(strings.NewReader(body))
	decoder.Strict = false

	values := map[string]string{}
	var stack []string
	sawElement := false

	for {
		tok, err := decoder.Token()
		if tok == nil {
			break
		}
		if err != nil {
			if sawElement {
				// Keep what was extracted from the well-formed prefix.
				break
			}
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			sawElement = true
			stack = append(stack, t.Name.Local)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" || len(stack) == 0 {
				continue
			}
			path := strings.Join(stack, ".")
			if _, ok := values[path]; !ok {
				values[path] = text
			}
		}
	}

	if !sawElement {
		return nil, errNoElements
	}
	return values, nil
}

// xmlLookup finds a field path in the flattened value map: exact match with
// the list path prefixed, then exact, then a suffix match so mappings can
// omit boilerplate ancestors (rss.channel....).
func xmlLookup(values map[string]string, listPath, fieldPath string) (string, bool) {
	if fieldPath == "" {
		return "", false
	}
	if listPath != "" {
		if v, ok := values[listPath+"."+fieldPath]; ok {
			return v, true
		}
	}
	if v, ok := values[fieldPath]; ok {
		return v, true
	}
	needle := "." + fieldPath
	for key, v := range values {
		if strings.HasSuffix(key, needle) {
			return v, true
		}
	}
	return "", false
}

// normalizeXML strips newlines/tabs and any leading XML declaration; feeds
// embed both in ways that confuse path display and storage diffs.
func normalizeXML(input string) string {
	replacer := strings.NewReplacer("\n", "", "\t", "", "\r", "")
	out := replacer.Replace(input)
	trimmed := strings.TrimSpace(out)
	if strings.HasPrefix(trimmed, "<?xml") {
		if idx := strings.Index(out, "?>"); idx >= 0 {
			return out[idx+2:]
		}
	}
	return out
}

type xmlError string

func (e xmlError) Error() string { return string(e) }

const errNoElements = xmlError("no XML elements found")
