package extract

import (
	"encoding/hex"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"carscout/internal/urlbuilder"
)

// MinYear is the oldest model year accepted from a title.
const MinYear = 1980

var (
	yearToken    = regexp.MustCompile(`\b\d{4}\b`)
	priceDigits  = regexp.MustCompile(`[0-9][0-9,]*(\.[0-9]{2})?`)
	priceInText  = regexp.MustCompile(`(?:CA)?\$\s?[0-9][0-9,]*`)
	mileageK     = regexp.MustCompile(`(?i)^([0-9]+(?:\.[0-9]+)?)\s*k\b\s*(km|mi|miles)?`)
	mileageInTxt = regexp.MustCompile(`(?i)[0-9][0-9,.]*\s*k?\s*(?:km|kilometers|mi|miles)\b`)
	countSuffix  = regexp.MustCompile(`\(\s*([0-9][0-9,]*)\s*\)\s*$`)
)

// ParseYear returns the first 4-digit token of title within
// [MinYear, now.Year()+1]. Titles without one yield nil; the year is never
// guessed.
func ParseYear(title string, now time.Time) *int {
	max := now.Year() + 1
	for _, tok := range yearToken.FindAllString(title, -1) {
		y, err := strconv.Atoi(tok)
		if err != nil {
			continue
		}
		if y >= MinYear && y <= max {
			return &y
		}
	}
	return nil
}

// NormalizePrice tags a price with its currency. Text without digits is
// treated as no price ("Contact dealer").
func NormalizePrice(text string) string {
	text = clean(text)
	digits := priceDigits.FindString(text)
	if digits == "" {
		return ""
	}
	digits = strings.TrimSuffix(digits, ",")
	return "CA$" + digits
}

// NormalizeMileage keeps the site's formatting but expands "50K km" style
// shorthand to full numbers.
func NormalizeMileage(text string) string {
	text = clean(text)
	if text == "" {
		return ""
	}
	if m := mileageK.FindStringSubmatch(text); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err == nil {
			unit := strings.ToLower(m[2])
			if unit == "" || unit == "kilometers" {
				unit = "km"
			}
			return formatThousands(int(v*1000+0.5)) + " " + unit
		}
	}
	return text
}

// ListingID returns the site listing id embedded in link, or a stable
// "cg_"-prefixed hash of the link when there is none.
func ListingID(link string) string {
	if link == "" {
		return ""
	}
	if id, ok := urlbuilder.ListingIDFromURL(link); ok {
		return id
	}
	sum := blake2b.Sum256([]byte(link))
	return "cg_" + hex.EncodeToString(sum[:8])
}

// Absolute resolves href against base. Unusable hrefs return "".
func Absolute(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base == nil {
		if !ref.IsAbs() {
			return ""
		}
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

// splitCount strips a trailing "(123)" from a filter label.
func splitCount(label string) (string, int) {
	label = clean(label)
	m := countSuffix.FindStringSubmatchIndex(label)
	if m == nil {
		return label, 0
	}
	n, _ := strconv.Atoi(strings.ReplaceAll(label[m[2]:m[3]], ",", ""))
	return strings.TrimSpace(label[:m[0]]), n
}

func formatThousands(n int) string {
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}
	var sb strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		sb.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(s[i : i+3])
	}
	return sb.String()
}
