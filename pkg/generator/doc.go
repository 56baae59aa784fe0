// Package generator provides the fixed catalog of named mock-data generators
// referenced from templates as @name or @name(args).
//
// # Built-in Generators
//
//   - @guid - RFC 4122 version 4 UUID
//   - @integer(min,max) - Random integer in [min, max], default 0,100
//   - @string(length) - Random alphanumeric string, default length 10
//   - @date(start,end) - Random YYYY-MM-DD date, default the last 30 days
//   - @image(WxH) - Placeholder image URL, default 150x150
//   - @boolean - Random true/false
//   - @float(min,max,decimals) - Random float, default 0,1,2
//   - @pick(a,b,c) - One of the listed options
//   - @name - Random first name
//   - @email(domain1,domain2) - Random address at one of the domains
//   - @phone(countryCode) - Digit string prefixed by the country code, default +1
//   - @address(countries) - Address object, default US
//   - @company(industries) - Company object
//   - @color - #rrggbb hex color
//   - @url(tlds) - Random URL
//   - @text(wordCount) - Pseudo sentence, default 10 words
//
// Every generator tolerates a missing or empty argument string by falling back
// to its default. A generator may return nil to signal "undefined" (for
// example @pick with no options).
//
// The catalog is immutable once a Registry is built. Randomness comes from the
// global math/rand/v2 source unless a seeded source is injected with WithRand.
package generator
