// Package normalize holds the pure value normalizers applied to every
// projected rate-list cell. Each function is idempotent: feeding its own
// output back in returns the same value.
package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Accreditation values stored on catalog entries.
const (
	AccreditationYes = "Yes"
	AccreditationNo  = "No"
	AccreditationNA  = "NA"
)

var (
	whitespaceRe   = regexp.MustCompile(`\s+`)
	tokenSplitRe   = regexp.MustCompile(`[\s-]+`)
	leadingIntRe   = regexp.MustCompile(`^[+-]?\d+`)
	plainDecimalRe = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)
)

// groupAliases corrects recurring typos and alternate spellings of test
// groups. Keys are lower-cased with collapsed whitespace.
var groupAliases = map[string]string{
	"chemcial parameters":            "Chemical Parameters",
	"chemical parameter":             "Chemical Parameters",
	"chemical":                       "Chemical Parameters",
	"micro biological parameters":    "Microbiological Parameters",
	"microbiological parameter":      "Microbiological Parameters",
	"microbiology":                   "Microbiological Parameters",
	"micro":                          "Microbiological Parameters",
	"physical parameter":             "Physical Parameters",
	"phyiscal parameters":            "Physical Parameters",
	"heavy metal":                    "Heavy Metals",
	"metals":                         "Heavy Metals",
	"pesticide residue":              "Pesticide Residues",
	"pesticides":                     "Pesticide Residues",
	"sampling & transportation cost": "Sampling And Transportation Cost",
	"sampling and transport cost":    "Sampling And Transportation Cost",
	"sampling & transport":           "Sampling And Transportation Cost",
	"sampling and transportation":    "Sampling And Transportation Cost",
	"ambient air":                    "Ambient Air Quality",
	"stack emission":                 "Stack Emission Monitoring",
	"noise":                          "Noise Monitoring",
	"nutritional parameters":         "Nutritional Parameters",
	"nutrition":                      "Nutritional Parameters",
}

// unitAliases maps lookup keys (see unitKey) to canonical unit spellings.
// Every canonical spelling's own key is present so lookups stay idempotent.
var unitAliases = map[string]string{
	// mass per litre
	"mg/l":       "mg/L",
	"mgl-1":      "mg/L",
	"mg/lit":     "mg/L",
	"mg/ltr":     "mg/L",
	"mg/litre":   "mg/L",
	"mg/liter":   "mg/L",
	"mgperl":     "mg/L",
	"mgperlitre": "mg/L",

	// micrograms per cubic metre
	"ug/m3":   "µg/m³",
	"ugm-3":   "µg/m³",
	"ug/nm3":  "µg/Nm³",
	"mcg/m3":  "µg/m³",
	"mcgm-3":  "µg/m³",
	"ugperm3": "µg/m³",

	// other units that show up across rate lists
	"ug/l":      "µg/L",
	"ugl-1":     "µg/L",
	"mg/nm3":    "mg/Nm³",
	"mg/m3":     "mg/m³",
	"mg/kg":     "mg/kg",
	"ug/kg":     "µg/kg",
	"ntu":       "NTU",
	"hazen":     "Hazen",
	"us/cm":     "µS/cm",
	"cfu/ml":    "CFU/mL",
	"cfu/g":     "CFU/g",
	"cfu/100ml": "CFU/100 mL",
	"mpn/100ml": "MPN/100 mL",
	"mpn/g":     "MPN/g",
	"db(a)":     "dB(A)",
	"dba":       "dB(A)",
	"%":         "%",
	"percent":   "%",
	"g/100g":    "g/100 g",
	"kcal/100g": "kcal/100 g",
}

// Regex fallbacks for the two unit families that are spelled the most ways.
// They run against the lookup key, after whitespace and micro signs are folded.
var (
	mgPerLitreRe  = regexp.MustCompile(`^mg(/|per|_)?l(it|itre|iter|tr|t)?\.?(-1)?$`)
	ugPerCubicMRe = regexp.MustCompile(`^(u|mc|micro)g(rams?)?(/|per|_)?(cu\.?)?m(-)?3$`)
)

var accreditationTokens = map[string]string{
	"yes":            AccreditationYes,
	"y":              AccreditationYes,
	"true":           AccreditationYes,
	"1":              AccreditationYes,
	"no":             AccreditationNo,
	"n":              AccreditationNo,
	"false":          AccreditationNo,
	"0":              AccreditationNo,
	"na":             AccreditationNA,
	"n/a":            AccreditationNA,
	"not applicable": AccreditationNA,
	"not available":  AccreditationNA,
}

// StringOrNull stringifies v, trims it and returns nil when nothing is left.
func StringOrNull(v any) *string {
	var s string
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		s = val
	case *string:
		if val == nil {
			return nil
		}
		s = *val
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return StringOrNull(float64(val))
	case int:
		s = strconv.Itoa(val)
	case int64:
		s = strconv.FormatInt(val, 10)
	case bool:
		s = strconv.FormatBool(val)
	default:
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// IntOrNull coerces v to an integer, flooring fractional values. Results
// must fit a 32-bit column. NaN, infinities, out-of-range values, empty
// strings and unparseable strings yield nil. Strings are read as base-10:
// they may carry thousands separators or trailing text ("7 days"), and
// anything after the leading digits of a non-decimal string is ignored, so
// "1e3" reads as 1.
func IntOrNull(v any) *int {
	switch val := v.(type) {
	case nil:
		return nil
	case int:
		return int64OrNull(int64(val))
	case int64:
		return int64OrNull(val)
	case *int:
		if val == nil {
			return nil
		}
		return int64OrNull(int64(*val))
	case float32:
		return IntOrNull(float64(val))
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil
		}
		f := math.Floor(val)
		if f < math.MinInt32 || f > math.MaxInt32 {
			return nil
		}
		i := int(f)
		return &i
	case string:
		return parseIntString(val)
	case *string:
		if val == nil {
			return nil
		}
		return parseIntString(*val)
	}
	return nil
}

func int64OrNull(v int64) *int {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return nil
	}
	i := int(v)
	return &i
}

var (
	minInt32 = decimal.NewFromInt(math.MinInt32)
	maxInt32 = decimal.NewFromInt(math.MaxInt32)
)

func parseIntString(s string) *int {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return nil
	}
	if plainDecimalRe.MatchString(s) {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil
		}
		d = d.Floor()
		if d.LessThan(minInt32) || d.GreaterThan(maxInt32) {
			return nil
		}
		i := int(d.IntPart())
		return &i
	}
	prefix := leadingIntRe.FindString(s)
	if prefix == "" {
		return nil
	}
	i, err := strconv.ParseInt(prefix, 10, 32)
	if err != nil {
		return nil
	}
	return int64OrNull(i)
}

// TitleCase upper-cases the first letter of every whitespace or hyphen
// delimited token and lower-cases the rest. Delimiters are kept; runs of
// whitespace collapse to one space. Other punctuation does not start a
// token, so "physical/chemical" becomes "Physical/chemical".
func TitleCase(s string) string {
	s = whitespaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
	if s == "" {
		return s
	}
	upper := cases.Upper(language.Und)
	lower := cases.Lower(language.Und)
	titleToken := func(tok string) string {
		if tok == "" {
			return tok
		}
		_, size := utf8.DecodeRuneInString(tok)
		return upper.String(tok[:size]) + lower.String(tok[size:])
	}

	var b strings.Builder
	last := 0
	for _, loc := range tokenSplitRe.FindAllStringIndex(s, -1) {
		b.WriteString(titleToken(s[last:loc[0]]))
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(titleToken(s[last:]))
	return b.String()
}

// NormalizeGroup trims the group, applies the alias table and otherwise
// title-cases it.
func NormalizeGroup(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	key := strings.ToLower(whitespaceRe.ReplaceAllString(s, " "))
	if canonical, ok := groupAliases[key]; ok {
		return &canonical
	}
	out := TitleCase(s)
	return &out
}

// NormalizeUnit maps the many spellings of a unit to one canonical form.
// Unknown units are returned trimmed but otherwise unchanged.
func NormalizeUnit(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	key := unitKey(s)
	if canonical, ok := unitAliases[key]; ok {
		return &canonical
	}
	switch {
	case mgPerLitreRe.MatchString(key):
		out := "mg/L"
		return &out
	case ugPerCubicMRe.MatchString(key):
		out := "µg/m³"
		return &out
	}
	return &s
}

// unitKey lower-cases s, drops all whitespace and folds micro signs and
// superscript digits to ASCII.
func unitKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch r {
		case ' ', '\t', '\n', '\r', '\u00a0':
			continue
		case 'µ', 'μ':
			b.WriteRune('u')
		case '³':
			b.WriteRune('3')
		case '²':
			b.WriteRune('2')
		case '¹':
			b.WriteRune('1')
		case '⁻', '−':
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeAccreditation maps the accreditation flag to Yes, No or NA.
// Anything unrecognised yields nil.
func NormalizeAccreditation(s string) *string {
	key := strings.ToLower(strings.TrimSpace(s))
	if key == "" {
		return nil
	}
	if out, ok := accreditationTokens[key]; ok {
		return &out
	}
	return nil
}
