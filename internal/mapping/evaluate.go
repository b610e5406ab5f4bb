package mapping

import (
	"encoding/json"
	"strings"

	"github.com/mmcdole/gofeed"

	"nowplaying/internal/models"
)

// Evaluate parses body according to the connection type and extracts zero or
// more normalized records. Deterministic: same inputs, same output sequence.
// A body that cannot be parsed yields (nil, *ParseError); individual paths
// that do not resolve only omit their field.
func Evaluate(body []byte, contentType, connectionType string, rules *Rules) ([]Record, error) {
	switch strings.ToLower(connectionType) {
	case models.TypeHTTPXML:
		return evaluateXML(body, connectionType, rules)
	case models.TypeRSS:
		if rules != nil {
			return evaluateXML(body, connectionType, rules)
		}
		return evaluateRSS(body, connectionType)
	case models.TypeHTTPText:
		return evaluateText(body, rules)
	default: // http_json, ws_json
		return evaluateJSON(body, connectionType, rules)
	}
}

func evaluateJSON(body []byte, connectionType string, rules *Rules) ([]Record, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &ParseError{ConnectionType: connectionType, Err: err}
	}
	if rules == nil {
		return []Record{defaultJSONRecord(doc)}, nil
	}

	// Feeds often wrap the interesting object in a single envelope key; try
	// the document itself first, then the unwrapped value.
	candidates := []any{doc}
	if obj, ok := doc.(map[string]any); ok && len(obj) == 1 {
		for _, v := range obj {
			candidates = append(candidates, v)
		}
	}

	for _, base := range candidates {
		if rules.ListPath != "" {
			if list, ok := Resolve(base, rules.ListPath); ok {
				if arr, ok := list.([]any); ok {
					records := make([]Record, 0, len(arr))
					for _, elem := range arr {
						records = append(records, extractRecord(elem, rules))
					}
					return records, nil
				}
			}
		}
		rec := extractRecord(base, rules)
		if !rec.Empty() {
			return []Record{rec}, nil
		}
	}
	// Nothing resolved anywhere; one record with every field absent.
	return []Record{{}}, nil
}

func extractRecord(elem any, rules *Rules) Record {
	var rec Record
	if v, ok := resolveField(elem, rules.ArtistPath); ok {
		rec.Artist = strPtr(v)
	}
	if v, ok := resolveField(elem, rules.TitlePath); ok {
		rec.Title = strPtr(v)
	}
	if v, ok := resolveField(elem, rules.AlbumPath); ok {
		rec.Album = strPtr(v)
	}
	if v, ok := resolveField(elem, rules.ReportedAtPath); ok {
		rec.ReportedAt = ParseReportedAt(v)
	}
	if rules.DurationPath != "" {
		if v, ok := Resolve(elem, rules.DurationPath); ok {
			rec.DurationSeconds = parseDurationValue(v)
		}
	}
	return rec
}

func resolveField(elem any, path string) (string, bool) {
	if path == "" {
		return "", false
	}
	return ResolveString(elem, path)
}

// defaultJSONRecord is the no-mapping fallback: the field names now-playing
// APIs actually use in the wild.
func defaultJSONRecord(doc any) Record {
	if arr, ok := doc.([]any); ok {
		if len(arr) == 0 {
			return Record{}
		}
		return defaultJSONRecord(arr[0])
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return Record{}
	}
	var rec Record
	if v, ok := firstString(obj, "artist", "artistName"); ok {
		rec.Artist = strPtr(v)
	}
	if v, ok := firstString(obj, "title", "song", "trackName"); ok {
		rec.Title = strPtr(v)
	}
	if v, ok := firstString(obj, "album", "collectionName"); ok {
		rec.Album = strPtr(v)
	}
	for _, key := range []string{"duration", "durationSeconds", "duration_seconds"} {
		if v, ok := obj[key]; ok {
			if d := parseDurationValue(v); d != nil {
				rec.DurationSeconds = d
				break
			}
		}
	}
	return rec
}

func firstString(obj map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := obj[key].(string); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func evaluateXML(body []byte, connectionType string, rules *Rules) ([]Record, error) {
	values, err := flattenXML(normalizeXML(string(body)))
	if err != nil {
		return nil, &ParseError{ConnectionType: connectionType, Err: err}
	}
	if rules == nil {
		rules = &Rules{ArtistPath: "artist", TitlePath: "title", AlbumPath: "album"}
	}

	var rec Record
	if v, ok := xmlLookup(values, rules.ListPath, rules.ArtistPath); ok {
		rec.Artist = strPtr(v)
	}
	if v, ok := xmlLookup(values, rules.ListPath, rules.TitlePath); ok {
		rec.Title = strPtr(v)
	}
	if v, ok := xmlLookup(values, rules.ListPath, rules.AlbumPath); ok {
		rec.Album = strPtr(v)
	}
	if v, ok := xmlLookup(values, rules.ListPath, rules.ReportedAtPath); ok {
		rec.ReportedAt = ParseReportedAt(v)
	}
	if v, ok := xmlLookup(values, rules.ListPath, rules.DurationPath); ok {
		rec.DurationSeconds = parseDurationString(v)
	}
	return []Record{rec}, nil
}

// evaluateRSS is the no-mapping RSS default: one record per item, title from
// the item title, reported_at from the published time. Artist and album stay
// absent; RSS has no standard slot for them.
func evaluateRSS(body []byte, connectionType string) ([]Record, error) {
	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, &ParseError{ConnectionType: connectionType, Err: err}
	}
	records := make([]Record, 0, len(feed.Items))
	for _, item := range feed.Items {
		var rec Record
		rec.Title = strPtr(strings.TrimSpace(item.Title))
		if item.PublishedParsed != nil {
			t := item.PublishedParsed.UTC()
			rec.ReportedAt = &t
		}
		records = append(records, rec)
	}
	return records, nil
}

// evaluateText handles plain-text feeds. Paths cannot address an unstructured
// body, so mapped and unmapped text connections are treated the same: the
// whole body is the record, split as "Artist - Title" when the common
// separator is present, otherwise title only.
func evaluateText(body []byte, _ *Rules) ([]Record, error) {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return []Record{{}}, nil
	}
	if artist, title, ok := strings.Cut(text, " - "); ok {
		artist = strings.TrimSpace(artist)
		title = strings.TrimSpace(title)
		if artist != "" && title != "" {
			return []Record{{Artist: strPtr(artist), Title: strPtr(title)}}, nil
		}
	}
	return []Record{{Title: strPtr(text)}}, nil
}

// StorageValue renders the body as a JSON value for the raw_payload column:
// valid JSON is stored verbatim, XML is whitespace-normalized and stored as a
// JSON string, anything else becomes a JSON string as-is.
func StorageValue(body []byte, connectionType string) []byte {
	switch strings.ToLower(connectionType) {
	case models.TypeHTTPXML, models.TypeRSS:
		out, _ := json.Marshal(normalizeXML(string(body)))
		return out
	}
	if json.Valid(body) {
		return body
	}
	out, _ := json.Marshal(string(body))
	return out
}
