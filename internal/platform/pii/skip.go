package pii

import "strings"

// SkipRule erases placeholder values (e.g. "John Doe", "anonymous") from a
// record before blocking and scoring. Values are case-insensitive glob
// patterns (* matches any run, ? a single character). Feature "*" applies
// the patterns to every feature.
type SkipRule struct {
	Feature Feature  `json:"feature"`
	Values  []string `json:"values"`
}

// Clean returns a copy of the record with every value matching a skip rule
// erased. The input record is never modified; cleaning a cleaned record
// changes nothing.
func Clean(r *Record, rules []SkipRule) *Record {
	out := r.Clone()
	if out == nil || len(rules) == 0 {
		return out
	}
	for _, rule := range rules {
		if len(rule.Values) == 0 {
			continue
		}
		if rule.Feature == "*" {
			for _, f := range Features() {
				eraseMatching(out, f, rule.Values)
			}
			continue
		}
		eraseMatching(out, rule.Feature, rule.Values)
	}
	return out
}

func matchesAny(patterns []string, v string) bool {
	for _, p := range patterns {
		if globMatch(p, v) {
			return true
		}
	}
	return false
}

// eraseMatching blanks the underlying record fields whose iterated value
// matches one of the patterns. Blanked values disappear from iteration, so
// a second pass finds nothing to erase.
func eraseMatching(r *Record, f Feature, patterns []string) {
	switch f.Base() {
	case FeatureBirthdate:
		if r.BirthDate != "" && matchesAny(patterns, r.BirthDate) {
			r.BirthDate = ""
		}
	case FeatureSex:
		if r.Sex != "" && matchesAny(patterns, r.Sex) {
			r.Sex = ""
		}
	case FeatureRace:
		if r.Race != "" && matchesAny(patterns, r.Race) {
			r.Race = ""
		}
	case FeatureFirstName:
		if len(r.Name) > 0 && len(r.Name[0].Given) > 0 && r.Name[0].Given[0] != "" &&
			matchesAny(patterns, r.Name[0].Given[0]) {
			r.Name[0].Given[0] = ""
		}
	case FeatureGivenName:
		if len(r.Name) > 0 {
			for i, g := range r.Name[0].Given {
				if g != "" && matchesAny(patterns, g) {
					r.Name[0].Given[i] = ""
				}
			}
		}
	case FeatureLastName:
		if len(r.Name) > 0 && r.Name[0].Family != "" && matchesAny(patterns, r.Name[0].Family) {
			r.Name[0].Family = ""
		}
	case FeatureName:
		for _, v := range Values(r, FeatureName) {
			if matchesAny(patterns, v) {
				if len(r.Name[0].Given) > 0 {
					r.Name[0].Given[0] = ""
				}
				r.Name[0].Family = ""
			}
		}
	case FeatureSuffix:
		if len(r.Name) > 0 && r.Name[0].Suffix != "" && matchesAny(patterns, r.Name[0].Suffix) {
			r.Name[0].Suffix = ""
		}
	case FeatureAddress:
		for i := range r.Address {
			v := strings.TrimSpace(strings.Join(r.Address[i].Line, " "))
			if v != "" && matchesAny(patterns, v) {
				r.Address[i].Line = nil
			}
		}
	case FeatureCity:
		for i := range r.Address {
			if r.Address[i].City != "" && matchesAny(patterns, r.Address[i].City) {
				r.Address[i].City = ""
			}
		}
	case FeatureState:
		for i := range r.Address {
			if r.Address[i].State != "" && matchesAny(patterns, r.Address[i].State) {
				r.Address[i].State = ""
			}
		}
	case FeatureZip:
		for i := range r.Address {
			if r.Address[i].PostalCode != "" && matchesAny(patterns, r.Address[i].PostalCode) {
				r.Address[i].PostalCode = ""
			}
		}
	case FeatureCounty:
		for i := range r.Address {
			if r.Address[i].County != "" && matchesAny(patterns, r.Address[i].County) {
				r.Address[i].County = ""
			}
		}
	case FeatureTelecom:
		for i := range r.Telecom {
			if r.Telecom[i].Value != "" && matchesAny(patterns, r.Telecom[i].Value) {
				r.Telecom[i].Value = ""
			}
		}
	case FeaturePhone, FeatureEmail:
		system := "phone"
		if f.Base() == FeatureEmail {
			system = "email"
		}
		for i := range r.Telecom {
			if r.Telecom[i].System == system && r.Telecom[i].Value != "" && matchesAny(patterns, r.Telecom[i].Value) {
				r.Telecom[i].Value = ""
			}
		}
	case FeatureIdentifier:
		want := f.IdentifierType()
		for i := range r.Identifiers {
			id := r.Identifiers[i]
			if id.Value == "" || (want != "" && id.Type != want) {
				continue
			}
			if matchesAny(patterns, id.Type+"|"+id.Authority+"|"+id.Value) {
				r.Identifiers[i].Value = ""
			}
		}
	}
}

// globMatch implements case-insensitive fnmatch with * and ? only; there
// are no character classes and no escapes.
func globMatch(pattern, s string) bool {
	p := []rune(strings.ToLower(pattern))
	v := []rune(strings.ToLower(s))

	// Backtracking match: remember the last * position and retry from there.
	pi, vi := 0, 0
	star, mark := -1, 0
	for vi < len(v) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == v[vi]):
			pi++
			vi++
		case pi < len(p) && p[pi] == '*':
			star, mark = pi, vi
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			vi = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}
