package generator

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MaxLength caps the length argument of the string and text generators.
const MaxLength = 1 << 16

// builtins returns the generator catalog bound to src.
func builtins(src *source) map[string]Func {
	g := &gens{src: src, now: time.Now}
	return map[string]Func{
		"guid":    g.guid,
		"integer": g.integer,
		"string":  g.string,
		"date":    g.date,
		"image":   g.image,
		"boolean": g.boolean,
		"float":   g.float,
		"pick":    g.pick,
		"name":    g.name,
		"email":   g.email,
		"phone":   g.phone,
		"address": g.address,
		"company": g.company,
		"color":   g.color,
		"url":     g.url,
		"text":    g.text,
	}
}

type gens struct {
	src *source
	now func() time.Time
}

// splitArgs splits a comma separated argument string, trimming each part.
// An empty or blank string yields nil.
func splitArgs(args string) []string {
	if strings.TrimSpace(args) == "" {
		return nil
	}
	parts := strings.Split(args, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// nonEmpty drops blank entries from parts.
func nonEmpty(parts []string) []string {
	return slices.DeleteFunc(parts, func(s string) bool { return s == "" })
}

// intArg parses parts[i] as an int, returning def when absent or malformed.
func intArg(parts []string, i, def int) int {
	if i >= len(parts) {
		return def
	}
	n, err := strconv.Atoi(parts[i])
	if err != nil {
		return def
	}
	return n
}

// floatArg parses parts[i] as a float64, returning def when absent or malformed.
func floatArg(parts []string, i int, def float64) float64 {
	if i >= len(parts) {
		return def
	}
	f, err := strconv.ParseFloat(parts[i], 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

func (g *gens) guid(string) any {
	return g.src.uuidV4()
}

func (g *gens) integer(args string) any {
	parts := splitArgs(args)
	return g.src.between(intArg(parts, 0, 0), intArg(parts, 1, 100))
}

func (g *gens) randomString(length int) string {
	length = max(0, min(length, MaxLength))
	var sb strings.Builder
	sb.Grow(length)
	for range length {
		sb.WriteByte(alphanumeric[g.src.intN(len(alphanumeric))])
	}
	return sb.String()
}

func (g *gens) string(args string) any {
	return g.randomString(intArg(splitArgs(args), 0, 10))
}

// parseDate accepts YYYY-MM-DD or RFC 3339 timestamps.
func parseDate(s string) (time.Time, bool) {
	for _, layout := range []string{time.DateOnly, time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (g *gens) date(args string) any {
	now := g.now()
	start := time.Date(now.Year(), now.Month(), now.Day()-30, 0, 0, 0, 0, now.Location())
	end := now

	parts := splitArgs(args)
	if len(parts) > 0 && parts[0] != "" {
		if t, ok := parseDate(parts[0]); ok {
			start = t
		}
	}
	if len(parts) > 1 && parts[1] != "" {
		if t, ok := parseDate(parts[1]); ok {
			end = t
		}
	}

	span := end.Sub(start)
	picked := start.Add(time.Duration(g.src.float64() * float64(span)))
	return picked.UTC().Format(time.DateOnly)
}

func (g *gens) image(args string) any {
	width, height := "150", "150"
	if strings.TrimSpace(args) != "" {
		dims := strings.SplitN(args, "x", 2)
		width = strings.TrimSpace(dims[0])
		height = width
		if len(dims) == 2 && strings.TrimSpace(dims[1]) != "" {
			height = strings.TrimSpace(dims[1])
		}
	}
	return placeholderImageBase + width + "x" + height
}

func (g *gens) boolean(string) any {
	return g.src.intN(2) == 1
}

func (g *gens) float(args string) any {
	parts := splitArgs(args)
	min := floatArg(parts, 0, 0)
	max := floatArg(parts, 1, 1)
	decimals := intArg(parts, 2, 2)
	if decimals < 0 {
		decimals = 2
	}
	if min > max {
		min, max = max, min
	}
	value := min + g.src.float64()*(max-min)
	scale := math.Pow(10, float64(decimals))
	return math.Round(value*scale) / scale
}

func (g *gens) pick(args string) any {
	options := splitArgs(args)
	if len(options) == 0 {
		return nil
	}
	return g.src.pick(options)
}

func (g *gens) name(string) any {
	return g.src.pick(firstNames)
}

func (g *gens) email(args string) any {
	domains := nonEmpty(splitArgs(args))
	if len(domains) == 0 {
		domains = emailDomains
	}
	username := g.src.pick(emailUsernames) + strconv.Itoa(g.src.intN(999))
	return username + "@" + g.src.pick(domains)
}

func (g *gens) phone(args string) any {
	countryCode := strings.TrimSpace(args)
	if countryCode == "" {
		countryCode = "+1"
	}
	return fmt.Sprintf("%s%03d%03d%04d", countryCode,
		g.src.between(100, 999), g.src.between(100, 999), g.src.intN(10000))
}

func (g *gens) address(args string) any {
	countries := nonEmpty(splitArgs(args))
	if len(countries) == 0 {
		countries = []string{"US"}
	}

	if slices.Contains(countries, "US") {
		return map[string]any{
			"street":  fmt.Sprintf("%d %s", g.src.between(1, 9999), g.src.pick(usStreets)),
			"city":    g.src.pick(usCities),
			"state":   g.src.pick(usStates),
			"zip":     g.src.between(10000, 99999),
			"country": "USA",
		}
	}

	return map[string]any{
		"street":  fmt.Sprintf("%d %s St", g.src.between(1, 999), g.src.pick(intlStreets)),
		"city":    g.src.pick(intlCities),
		"country": g.src.pick(countries),
	}
}

func (g *gens) company(args string) any {
	choices := nonEmpty(splitArgs(args))
	if len(choices) == 0 {
		choices = industries
	}
	return map[string]any{
		"name":      g.src.pick(companyPrefixes) + " " + g.src.pick(companySuffixes),
		"industry":  g.src.pick(choices),
		"size":      g.src.pick(companySizes),
		"founded":   g.src.between(1970, 2019),
		"employees": g.src.between(10, 10009),
	}
}

func (g *gens) color(string) any {
	return fmt.Sprintf("#%06x", g.src.intN(0x1000000))
}

func (g *gens) url(args string) any {
	tlds := nonEmpty(splitArgs(args))
	if len(tlds) == 0 {
		tlds = urlTLDs
	}
	domain := strings.ToLower(g.randomString(8))
	return fmt.Sprintf("%s://%s.%s.%s", g.src.pick(urlProtocols), g.src.pick(urlSubdomains), domain, g.src.pick(tlds))
}

func (g *gens) text(args string) any {
	count := min(intArg(splitArgs(args), 0, 10), MaxLength)
	if count <= 0 {
		return "."
	}
	// Casers are stateful, so one per call.
	title := cases.Title(language.English)
	words := make([]string, count)
	for i := range words {
		w := g.src.pick(textWords)
		if i == 0 || g.src.float64() < 0.1 {
			w = title.String(w)
		}
		words[i] = w
	}
	return strings.Join(words, " ") + "."
}
