package agent

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
)

var (
	reDay8     = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
	reDayDash  = regexp.MustCompile(`^(\d{4})[-/](\d{1,2})[-/](\d{1,2})$`)
	reMonth    = regexp.MustCompile(`^(\d{4})[-/](\d{1,2})$`)
	reMonth6   = regexp.MustCompile(`^(\d{4})(\d{2})$`)
	reYear     = regexp.MustCompile(`^(\d{4})$`)
	reCountry2 = regexp.MustCompile(`^[A-Za-z]{2}$`)
)

// isDateKey reports whether a filter key or column name denotes a date.
func isDateKey(name string) bool {
	return strings.Contains(strings.ToLower(name), "date")
}

func isCountryKey(name string) bool {
	return strings.Contains(strings.ToLower(name), "country")
}

// normalizeFilters canonicalizes keys against the schema and rewrites
// date values into YYYYMMDD integers (or DateRange) and country values
// into uppercase 2-letter codes. Keys naming no schema column are left out
// of the result and returned as "key=value" notes, sorted.
func normalizeFilters(in map[string]any, schema *SchemaOverview) (map[string]any, []string) {
	out := make(map[string]any, len(in))
	var unknown []string
	for k, v := range in {
		_, col, ok := schema.findColumn(strings.TrimSpace(k))
		if !ok {
			unknown = append(unknown, fmt.Sprintf("%s=%v", k, v))
			continue
		}
		key := col.Name
		switch {
		case isDateKey(key):
			out[key] = normalizeDate(v)
		case isCountryKey(key):
			out[key] = normalizeCountry(v)
		default:
			out[key] = normalizeNumber(v)
		}
	}
	slices.Sort(unknown)
	return out, unknown
}

// normalizeDate returns an int (single day), a DateRange, or the input
// unchanged when it is not recognisably a date.
func normalizeDate(v any) any {
	switch val := v.(type) {
	case DateRange:
		return val
	case float64:
		if n, ok := asDateInt(val); ok {
			return n
		}
	case int:
		if n, ok := asDateInt(float64(val)); ok {
			return n
		}
	case string:
		if r, ok := parseDateRange(val); ok {
			if r.Start == r.End {
				return r.Start
			}
			return r
		}
	case map[string]any:
		start, okS := dateBound(val["start"], false)
		end, okE := dateBound(val["end"], true)
		if okS && okE {
			return DateRange{Start: start, End: end}
		}
	case []any:
		if len(val) == 2 {
			start, okS := dateBound(val[0], false)
			end, okE := dateBound(val[1], true)
			if okS && okE {
				return DateRange{Start: start, End: end}
			}
		}
	}
	return v
}

// dateBound resolves one side of a range; month or year values expand to
// their first or last day depending on upper.
func dateBound(v any, upper bool) (int, bool) {
	switch val := v.(type) {
	case float64:
		return asDateInt(val)
	case int:
		return asDateInt(float64(val))
	case string:
		r, ok := parseDateRange(val)
		if !ok {
			return 0, false
		}
		if upper {
			return r.End, true
		}
		return r.Start, true
	}
	return 0, false
}

func asDateInt(f float64) (int, bool) {
	if f != math.Trunc(f) || f < 10000101 || f > 99991231 {
		return 0, false
	}
	n := int(f)
	if !validDay(n/10000, (n/100)%100, n%100) {
		return 0, false
	}
	return n, true
}

// parseDateRange understands YYYYMMDD, YYYY-MM-DD, YYYY-MM, YYYYMM and YYYY.
func parseDateRange(s string) (DateRange, bool) {
	s = strings.TrimSpace(s)
	if m := reDay8.FindStringSubmatch(s); m != nil {
		return dayRange(m[1], m[2], m[3])
	}
	if m := reDayDash.FindStringSubmatch(s); m != nil {
		return dayRange(m[1], m[2], m[3])
	}
	if m := reMonth.FindStringSubmatch(s); m != nil {
		return monthRange(m[1], m[2])
	}
	if m := reMonth6.FindStringSubmatch(s); m != nil {
		return monthRange(m[1], m[2])
	}
	if m := reYear.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		return DateRange{Start: y*10000 + 101, End: y*10000 + 1231}, true
	}
	return DateRange{}, false
}

func dayRange(ys, ms, ds string) (DateRange, bool) {
	y, _ := strconv.Atoi(ys)
	m, _ := strconv.Atoi(ms)
	d, _ := strconv.Atoi(ds)
	if !validDay(y, m, d) {
		return DateRange{}, false
	}
	n := y*10000 + m*100 + d
	return DateRange{Start: n, End: n}, true
}

func monthRange(ys, ms string) (DateRange, bool) {
	y, _ := strconv.Atoi(ys)
	m, _ := strconv.Atoi(ms)
	if m < 1 || m > 12 {
		return DateRange{}, false
	}
	last := time.Date(y, time.Month(m)+1, 0, 0, 0, 0, 0, time.UTC).Day()
	return DateRange{Start: y*10000 + m*100 + 1, End: y*10000 + m*100 + last}, true
}

func validDay(y, m, d int) bool {
	if m < 1 || m > 12 || d < 1 {
		return false
	}
	return d <= time.Date(y, time.Month(m)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func normalizeCountry(v any) any {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(strings.Trim(strings.TrimSpace(val), "%"))
		if reCountry2.MatchString(s) {
			return strings.ToUpper(s)
		}
		return val
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = normalizeCountry(x)
		}
		return out
	}
	return v
}

// normalizeNumber turns integral JSON numbers into ints so they render
// without a decimal point.
func normalizeNumber(v any) any {
	if f, ok := v.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int(f)
	}
	return v
}

// formatDateInt renders 20241015 as 2024-10-15.
func formatDateInt(n int64) (string, bool) {
	if n < 10000101 || n > 99991231 {
		return "", false
	}
	y, m, d := int(n/10000), int((n/100)%100), int(n%100)
	if !validDay(y, m, d) {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d), true
}

func clamp01(f float64) float64 {
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}
