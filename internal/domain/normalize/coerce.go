package normalize

import (
	"math"
	"strconv"
	"strings"

	"github.com/okian/trendradar/internal/domain/model"
)

// Coerce reads a raw cell as a finite number. Blank cells report
// IssueMissing; anything else that does not parse reports IssueNonNumeric.
// Strings may carry a percent sign and either ',' or '.' as the decimal
// separator ("12,5%", "1.234,5", "1,234.5").
func Coerce(v any) (float64, model.IssueKind, bool) {
	switch t := v.(type) {
	case nil:
		return 0, model.IssueMissing, false
	case float64:
		return finite(t)
	case float32:
		return finite(float64(t))
	case int:
		return float64(t), "", true
	case int32:
		return float64(t), "", true
	case int64:
		return float64(t), "", true
	case uint:
		return float64(t), "", true
	case uint64:
		return float64(t), "", true
	case string:
		return parseNumeric(t)
	case interface{ String() string }:
		return parseNumeric(t.String())
	default:
		return 0, model.IssueNonNumeric, false
	}
}

func finite(f float64) (float64, model.IssueKind, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, model.IssueNonNumeric, false
	}
	return f, "", true
}

func parseNumeric(s string) (float64, model.IssueKind, bool) {
	raw := strings.TrimSpace(strings.ReplaceAll(s, "\u00a0", " "))
	if raw == "" {
		return 0, model.IssueMissing, false
	}
	raw = strings.TrimSpace(strings.TrimSuffix(raw, "%"))

	var dec, thou string
	cpos := strings.LastIndex(raw, ",")
	dpos := strings.LastIndex(raw, ".")
	switch {
	case cpos >= 0 && dpos >= 0 && cpos > dpos:
		dec, thou = ",", "."
	case cpos >= 0 && dpos >= 0:
		dec, thou = ".", ","
	case cpos >= 0 && strings.Count(raw, ",") > 1:
		// "1,234,567" has no decimal part
		thou = ","
	case cpos >= 0:
		dec = ","
	default:
		dec = "."
	}
	if thou != "" {
		raw = strings.ReplaceAll(raw, thou, "")
	}
	raw = strings.ReplaceAll(raw, " ", "")
	if dec == "," {
		raw = strings.ReplaceAll(raw, ",", ".")
	}

	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, model.IssueNonNumeric, false
	}
	return finite(f)
}
