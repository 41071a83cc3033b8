// Package preprocess normalizes raw utterance text before phonemization:
// markup and links are removed and numerals are spelled out in English.
package preprocess

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	urlRe        = regexp.MustCompile(`https?://\S+|www\.\S+`)
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	emailRe      = regexp.MustCompile(`\S+@\S+\.\S+`)
)

type Preprocessor struct{}

func NewPreprocessor() *Preprocessor {
	return &Preprocessor{}
}

// Process returns the normalized form of one utterance. Sentence-final
// punctuation is preserved; newlines collapse into single spaces.
func (p *Preprocessor) Process(text string) string {
	text = norm.NFC.String(text)
	text = urlRe.ReplaceAllString(text, "")
	text = htmlTagRe.ReplaceAllString(text, "")
	text = emailRe.ReplaceAllString(text, "")
	text = normalizeQuotes(text)
	text = normalizePunctuation(text)
	text = expandCurrency(text)
	text = expandTime(text)
	text = expandOrdinals(text)
	text = expandPercent(text)
	text = expandDecimals(text)
	text = expandNumbers(text)
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

var onesWords = []string{
	"", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
	"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen",
	"seventeen", "eighteen", "nineteen",
}

var tensWords = []string{
	"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety",
}

var scaleWords = []string{"", "thousand", "million", "billion", "trillion", "quadrillion", "quintillion"}

var digitWords = []string{"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine"}

// NumberToWords spells out n in English.
func NumberToWords(n int64) string {
	if n == 0 {
		return "zero"
	}
	prefix := ""
	m := uint64(n)
	if n < 0 {
		prefix = "minus "
		m = -m
	}

	var parts []string
	for scale := 0; m > 0; scale++ {
		if group := int(m % 1000); group > 0 {
			words := groupToWords(group)
			if scale > 0 {
				words += " " + scaleWords[scale]
			}
			parts = append([]string{words}, parts...)
		}
		m /= 1000
	}
	return prefix + strings.Join(parts, " ")
}

func groupToWords(n int) string {
	switch {
	case n == 0:
		return ""
	case n < 20:
		return onesWords[n]
	case n < 100:
		if n%10 == 0 {
			return tensWords[n/10]
		}
		return tensWords[n/10] + " " + onesWords[n%10]
	}
	hundreds := onesWords[n/100] + " hundred"
	if n%100 == 0 {
		return hundreds
	}
	return hundreds + " " + groupToWords(n%100)
}

var ordinalSuffix = map[string]string{
	"one": "first", "two": "second", "three": "third", "five": "fifth",
	"eight": "eighth", "nine": "ninth", "twelve": "twelfth",
}

// OrdinalToWords spells out n as an English ordinal.
func OrdinalToWords(n int64) string {
	words := NumberToWords(n)
	i := strings.LastIndexByte(words, ' ') + 1
	last := words[i:]
	switch {
	case ordinalSuffix[last] != "":
		last = ordinalSuffix[last]
	case strings.HasSuffix(last, "y"):
		last = strings.TrimSuffix(last, "y") + "ieth"
	default:
		last += "th"
	}
	return words[:i] + last
}

func spellDigits(digits string) string {
	words := make([]string, 0, len(digits))
	for _, c := range digits {
		if c >= '0' && c <= '9' {
			words = append(words, digitWords[c-'0'])
		}
	}
	return strings.Join(words, " ")
}

func parseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	return n, err == nil
}

// cardinal spells out digits as a number, or digit by digit when they do
// not fit an int64.
func cardinal(digits string) (string, int64) {
	n, ok := parseInt(digits)
	if !ok {
		return spellDigits(digits), -1
	}
	return NumberToWords(n), n
}

var numberRe = regexp.MustCompile(`\b\d{1,3}(?:,\d{3})+\b|\b\d+\b`)

// expandNumbers reads integers as cardinals; digit strings too long for
// that are read digit by digit.
func expandNumbers(text string) string {
	return numberRe.ReplaceAllStringFunc(text, func(match string) string {
		n, ok := parseInt(match)
		if !ok || n >= 1e15 {
			return spellDigits(match)
		}
		return NumberToWords(n)
	})
}

var decimalRe = regexp.MustCompile(`\b(\d+)\.(\d+)\b`)

func expandDecimals(text string) string {
	return decimalRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := decimalRe.FindStringSubmatch(match)
		whole, _ := cardinal(parts[1])
		return whole + " point " + spellDigits(parts[2])
	})
}

var percentRe = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s?%`)

func expandPercent(text string) string {
	return percentRe.ReplaceAllString(text, "$1 percent")
}

var currencyRe = regexp.MustCompile(`\$(\d{1,3}(?:,\d{3})+|\d+)(?:\.(\d{2}))?\b`)

func expandCurrency(text string) string {
	return currencyRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := currencyRe.FindStringSubmatch(match)
		words, dollars := cardinal(parts[1])
		result := words + plural(dollars, " dollar")
		if parts[2] != "" && parts[2] != "00" {
			cents, _ := parseInt(parts[2])
			result += " and " + NumberToWords(cents) + plural(cents, " cent")
		}
		return result
	})
}

func plural(n int64, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}

var timeRe = regexp.MustCompile(`\b(\d{1,2}):(\d{2})(?:\s*([aApP])\.?[mM]\b)?`)

func expandTime(text string) string {
	return timeRe.ReplaceAllStringFunc(text, func(match string) string {
		parts := timeRe.FindStringSubmatch(match)
		hour, _ := parseInt(parts[1])
		minute, _ := parseInt(parts[2])
		if hour > 23 || minute > 59 {
			return match
		}
		result := NumberToWords(hour)
		switch {
		case minute == 0 && parts[3] == "":
			result += " o'clock"
		case minute == 0:
		case minute < 10:
			result += " oh " + NumberToWords(minute)
		default:
			result += " " + NumberToWords(minute)
		}
		if parts[3] != "" {
			result += " " + strings.ToLower(parts[3]) + " m"
		}
		return result
	})
}

var ordinalRe = regexp.MustCompile(`\b(\d+)(?:st|nd|rd|th)\b`)

func expandOrdinals(text string) string {
	return ordinalRe.ReplaceAllStringFunc(text, func(match string) string {
		digits := ordinalRe.FindStringSubmatch(match)[1]
		n, ok := parseInt(digits)
		if !ok {
			return spellDigits(digits)
		}
		return OrdinalToWords(n)
	})
}

var quoteReplacer = strings.NewReplacer(
	"“", "\"", "”", "\"",
	"‘", "'", "’", "'",
	"«", "\"", "»", "\"",
)

func normalizeQuotes(text string) string {
	return quoteReplacer.Replace(text)
}

var (
	dashRe              = regexp.MustCompile(`\s*[—–]\s*`)
	punctuationReplacer = strings.NewReplacer("…", "...", "•", ",")
)

func normalizePunctuation(text string) string {
	return punctuationReplacer.Replace(dashRe.ReplaceAllString(text, ", "))
}
