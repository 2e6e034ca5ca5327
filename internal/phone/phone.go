// ABOUTME: Resolves destination phone numbers to ISO country codes by dialing prefix.
// ABOUTME: Longest-prefix match over a static table; unknown prefixes fall back to US.

package phone

import (
	"regexp"
	"strings"
)

// DefaultCountry is returned when no dialing prefix matches.
const DefaultCountry = "US"

// prefixes maps international dialing codes to ISO 3166-1 alpha-2 countries.
// All NANP numbers resolve to US; the pool does not distinguish NANP members.
var prefixes = map[string]string{
	"1":   "US",
	"7":   "RU",
	"20":  "EG",
	"27":  "ZA",
	"30":  "GR",
	"31":  "NL",
	"32":  "BE",
	"33":  "FR",
	"34":  "ES",
	"36":  "HU",
	"39":  "IT",
	"40":  "RO",
	"41":  "CH",
	"43":  "AT",
	"44":  "GB",
	"45":  "DK",
	"46":  "SE",
	"47":  "NO",
	"48":  "PL",
	"49":  "DE",
	"51":  "PE",
	"52":  "MX",
	"53":  "CU",
	"54":  "AR",
	"55":  "BR",
	"56":  "CL",
	"57":  "CO",
	"58":  "VE",
	"60":  "MY",
	"61":  "AU",
	"62":  "ID",
	"63":  "PH",
	"64":  "NZ",
	"65":  "SG",
	"66":  "TH",
	"81":  "JP",
	"82":  "KR",
	"84":  "VN",
	"86":  "CN",
	"90":  "TR",
	"91":  "IN",
	"92":  "PK",
	"94":  "LK",
	"95":  "MM",
	"98":  "IR",
	"212": "MA",
	"213": "DZ",
	"216": "TN",
	"220": "GM",
	"221": "SN",
	"233": "GH",
	"234": "NG",
	"251": "ET",
	"254": "KE",
	"255": "TZ",
	"256": "UG",
	"260": "ZM",
	"263": "ZW",
	"351": "PT",
	"352": "LU",
	"353": "IE",
	"354": "IS",
	"358": "FI",
	"359": "BG",
	"370": "LT",
	"371": "LV",
	"372": "EE",
	"380": "UA",
	"385": "HR",
	"386": "SI",
	"420": "CZ",
	"421": "SK",
	"852": "HK",
	"853": "MO",
	"880": "BD",
	"886": "TW",
	"961": "LB",
	"962": "JO",
	"963": "SY",
	"964": "IQ",
	"965": "KW",
	"966": "SA",
	"968": "OM",
	"971": "AE",
	"972": "IL",
	"973": "BH",
	"974": "QA",
	"977": "NP",
	"994": "AZ",
	"995": "GE",
	"998": "UZ",
}

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

// CountryForNumber resolves a dialed number to its country by international
// prefix. Longer prefixes win: three-digit codes are tried before two-digit,
// two before one. Numbers with no recognized prefix resolve to DefaultCountry.
func CountryForNumber(number string) string {
	digits := stripFormatting(number)
	for l := 3; l >= 1; l-- {
		if len(digits) < l {
			continue
		}
		if country, ok := prefixes[digits[:l]]; ok {
			return country
		}
	}
	return DefaultCountry
}

// Normalize strips visual separators from a dialable number and restores the
// leading plus. It does not validate the result; use IsE164 for that.
func Normalize(number string) string {
	digits := stripFormatting(number)
	if digits == "" {
		return ""
	}
	return "+" + digits
}

// IsE164 reports whether number is a well-formed E.164 string (+ followed by
// 2 to 15 digits, no leading zero).
func IsE164(number string) bool {
	return e164Pattern.MatchString(number)
}

// stripFormatting removes the plus sign and common separators, leaving digits.
func stripFormatting(number string) string {
	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
