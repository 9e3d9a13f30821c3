package docstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// TravelPackage is a typed travel search result.
type TravelPackage struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	ProviderID   string          `json:"provider_id"`
	LocationID   string          `json:"location_id"`
	Price        decimal.Decimal `json:"price"`
	DurationDays int             `json:"duration_days"`
	Highlights   []string        `json:"highlights"`
	Description  string          `json:"description"`
	ImageURL     *string         `json:"image_url"`
}

// RequiredTravelKeys must all be present for a record to become a package.
var RequiredTravelKeys = []string{
	"id", "title", "provider_id", "location_id", "price", "duration_days", "highlights", "description",
}

// IncompleteError lists the required keys a travel record lacks.
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	return "travel package is missing " + strings.Join(e.Missing, ", ")
}

// ParseTravelPackage converts a store record into a TravelPackage. The score
// column is ignored.
func ParseTravelPackage(rec Record) (TravelPackage, error) {
	var missing []string
	for _, k := range RequiredTravelKeys {
		if _, ok := rec[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return TravelPackage{}, &IncompleteError{Missing: missing}
	}

	price, err := parseDecimal(rec["price"])
	if err != nil {
		return TravelPackage{}, fmt.Errorf("price: %w", err)
	}
	days, err := parseInt(rec["duration_days"])
	if err != nil {
		return TravelPackage{}, fmt.Errorf("duration_days: %w", err)
	}

	pkg := TravelPackage{
		ID:           text(rec["id"]),
		Title:        text(rec["title"]),
		ProviderID:   text(rec["provider_id"]),
		LocationID:   text(rec["location_id"]),
		Price:        price,
		DurationDays: days,
		Highlights:   ParseHighlights(rec["highlights"]),
		Description:  text(rec["description"]),
	}
	if v, ok := rec["image_url"]; ok && v != nil {
		s := text(v)
		pkg.ImageURL = &s
	}
	return pkg, nil
}

// ParseHighlights accepts a list value, a JSON array, a Python list literal,
// a Postgres array literal or a comma-separated string.
func ParseHighlights(v any) []string {
	switch val := v.(type) {
	case nil:
		return []string{}
	case []string:
		return cleanList(val)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if item != nil {
				out = append(out, text(item))
			}
		}
		return cleanList(out)
	case string:
		return parseHighlightText(val)
	default:
		return parseHighlightText(text(val))
	}
}

func parseHighlightText(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{}
	}

	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		var list []string
		if err := json.Unmarshal([]byte(s), &list); err == nil {
			return cleanList(list)
		}
		return cleanList(splitQuoted(s[1 : len(s)-1]))
	}
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return cleanList(splitQuoted(s[1 : len(s)-1]))
	}
	return cleanList(strings.Split(s, ","))
}

// splitQuoted splits on commas outside single or double quotes and strips the
// quotes.
func splitQuoted(s string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote rune
		esc   bool
	)
	for _, r := range s {
		switch {
		case esc:
			cur.WriteRune(r)
			esc = false
		case r == '\\' && quote != 0:
			esc = true
		case quote != 0 && r == quote:
			quote = 0
		case quote == 0 && (r == '\'' || r == '"'):
			quote = r
		case quote == 0 && r == ',':
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(out, cur.String())
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func text(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func parseDecimal(v any) (decimal.Decimal, error) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val, nil
	case json.Number:
		return decimal.NewFromString(val.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(val))
	case float64:
		return decimal.NewFromFloat(val), nil
	case float32:
		return decimal.NewFromFloat32(val), nil
	case int:
		return decimal.NewFromInt(int64(val)), nil
	case int32:
		return decimal.NewFromInt32(val), nil
	case int64:
		return decimal.NewFromInt(val), nil
	}
	return decimal.Decimal{}, fmt.Errorf("unsupported value %T", v)
}

func parseInt(v any) (int, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case int32:
		return int(val), nil
	case int64:
		return int(val), nil
	case float64:
		return int(val), nil
	case json.Number:
		n, err := val.Int64()
		if err != nil {
			f, ferr := val.Float64()
			if ferr != nil {
				return 0, err
			}
			return int(f), nil
		}
		return int(n), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(val))
	}
	return 0, fmt.Errorf("unsupported value %T", v)
}
