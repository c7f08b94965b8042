package pii

import (
	"fmt"
	"strings"
)

// Feature names a comparable attribute of a record. The set is closed;
// IDENTIFIER additionally admits a typed form "IDENTIFIER:<type>" that
// restricts iteration to identifiers of that HL7 v2 0203 type.
type Feature string

const (
	FeatureBirthdate  Feature = "BIRTHDATE"
	FeatureSex        Feature = "SEX"
	FeatureRace       Feature = "RACE"
	FeatureGivenName  Feature = "GIVEN_NAME"
	FeatureFirstName  Feature = "FIRST_NAME"
	FeatureLastName   Feature = "LAST_NAME"
	FeatureName       Feature = "NAME"
	FeatureSuffix     Feature = "SUFFIX"
	FeatureAddress    Feature = "ADDRESS"
	FeatureCity       Feature = "CITY"
	FeatureState      Feature = "STATE"
	FeatureZip        Feature = "ZIP"
	FeatureCounty     Feature = "COUNTY"
	FeatureTelecom    Feature = "TELECOM"
	FeaturePhone      Feature = "PHONE"
	FeatureEmail      Feature = "EMAIL"
	FeatureIdentifier Feature = "IDENTIFIER"
)

var baseFeatures = []Feature{
	FeatureBirthdate, FeatureSex, FeatureRace,
	FeatureGivenName, FeatureFirstName, FeatureLastName, FeatureName, FeatureSuffix,
	FeatureAddress, FeatureCity, FeatureState, FeatureZip, FeatureCounty,
	FeatureTelecom, FeaturePhone, FeatureEmail,
	FeatureIdentifier,
}

var featureSet = func() map[Feature]bool {
	m := make(map[Feature]bool, len(baseFeatures))
	for _, f := range baseFeatures {
		m[f] = true
	}
	return m
}()

// Features returns the closed list of base features (typed identifier forms
// excluded; they are parseable, not enumerable).
func Features() []Feature {
	out := make([]Feature, len(baseFeatures))
	copy(out, baseFeatures)
	return out
}

// ParseFeature validates a feature name as it appears in algorithm
// configuration. Names are stable and case-sensitive; the only parameterized
// form is "IDENTIFIER:<type>".
func ParseFeature(s string) (Feature, error) {
	f := Feature(s)
	if featureSet[f] {
		return f, nil
	}
	if t, ok := strings.CutPrefix(s, string(FeatureIdentifier)+":"); ok && t != "" {
		return f, nil
	}
	return "", fmt.Errorf("unknown feature %q", s)
}

// Base strips the identifier type qualifier: IDENTIFIER:MR -> IDENTIFIER.
func (f Feature) Base() Feature {
	if i := strings.IndexByte(string(f), ':'); i >= 0 {
		return f[:i]
	}
	return f
}

// IdentifierType returns the type qualifier of a typed identifier feature,
// or "" for every other feature.
func (f Feature) IdentifierType() string {
	if t, ok := strings.CutPrefix(string(f), string(FeatureIdentifier)+":"); ok {
		return t
	}
	return ""
}

// Values iterates the record's values for one feature. Empty strings are
// never emitted; a feature with nothing to offer returns an empty slice.
func Values(r *Record, f Feature) []string {
	if r == nil {
		return nil
	}
	var out []string
	add := func(v string) {
		if v != "" {
			out = append(out, v)
		}
	}

	switch f.Base() {
	case FeatureBirthdate:
		add(r.BirthDate)
	case FeatureSex:
		add(r.Sex)
	case FeatureRace:
		add(r.Race)
	case FeatureFirstName:
		if len(r.Name) > 0 && len(r.Name[0].Given) > 0 {
			add(r.Name[0].Given[0])
		}
	case FeatureGivenName:
		if len(r.Name) > 0 {
			for _, g := range r.Name[0].Given {
				add(g)
			}
		}
	case FeatureLastName:
		if len(r.Name) > 0 {
			add(r.Name[0].Family)
		}
	case FeatureName:
		if len(r.Name) > 0 {
			var first string
			if len(r.Name[0].Given) > 0 {
				first = r.Name[0].Given[0]
			}
			add(strings.TrimSpace(first + " " + r.Name[0].Family))
		}
	case FeatureSuffix:
		if len(r.Name) > 0 {
			add(r.Name[0].Suffix)
		}
	case FeatureAddress:
		for _, a := range r.Address {
			add(strings.TrimSpace(strings.Join(a.Line, " ")))
		}
	case FeatureCity:
		for _, a := range r.Address {
			add(a.City)
		}
	case FeatureState:
		for _, a := range r.Address {
			add(a.State)
		}
	case FeatureZip:
		for _, a := range r.Address {
			add(a.PostalCode)
		}
	case FeatureCounty:
		for _, a := range r.Address {
			add(a.County)
		}
	case FeatureTelecom:
		for _, t := range r.Telecom {
			add(t.Value)
		}
	case FeaturePhone:
		for _, t := range r.Telecom {
			if t.System == "phone" {
				add(t.Value)
			}
		}
	case FeatureEmail:
		for _, t := range r.Telecom {
			if t.System == "email" {
				add(t.Value)
			}
		}
	case FeatureIdentifier:
		want := f.IdentifierType()
		for _, id := range r.Identifiers {
			if id.Value == "" {
				continue
			}
			if want != "" && id.Type != want {
				continue
			}
			add(id.Type + "|" + id.Authority + "|" + id.Value)
		}
	}
	return out
}
