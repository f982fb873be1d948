package rowset

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Canonical converts a value to its canonical string form used for business
// keys, FK lookups, and field comparison. Strings are trimmed and
// NFC-normalized so visually identical inputs (decomposed accents, stray
// spacing from spreadsheet exports) compare equal. Integral floats render
// without the trailing ".0" that spreadsheet readers attach to numeric cells.
func Canonical(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return norm.NFC.String(strings.TrimSpace(t))
	case []byte:
		// database/sql drivers commonly return text columns as []byte.
		return norm.NFC.String(strings.TrimSpace(string(t)))
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return Canonical(float64(t))
	case bool:
		if t {
			return "true"
		}
		return "false"
	case time.Time:
		// Date-valued columns compare on the day, matching how the store
		// returns DATE columns.
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
			return t.Format("2006-01-02")
		}
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}

// Equal reports whether two field values are the same under the null-aware,
// string-normalized rules: two absent values are equal, absent versus present
// is unequal, and present values compare by canonical string form.
func Equal(a, b any) bool {
	an := isAbsent(a)
	bn := isAbsent(b)
	if an || bn {
		return an == bn
	}
	return Canonical(a) == Canonical(b)
}

// isAbsent treats nil and whitespace-only strings as absent. The normalizer
// already nils out empty strings for upload rows, but values read back from
// the store have not passed through it.
func isAbsent(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) == ""
	case []byte:
		return strings.TrimSpace(string(t)) == ""
	}
	return false
}
