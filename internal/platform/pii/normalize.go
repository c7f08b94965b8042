package pii

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidBirthdate reports a birthdate that is unparseable or in the
// future. Wrapped errors carry the offending value.
var ErrInvalidBirthdate = errors.New("invalid birthdate")

// Normalize canonicalizes a freshly decoded record in place: birthdate to
// ISO YYYY-MM-DD, sex to M/F, race to OMB category tokens, phones to
// national digits, ZIP to 5 digits, state to the 2-letter USPS code, and
// street suffixes to their USPS abbreviations. Fields that cannot be
// canonicalized are dropped, except the birthdate which is rejected.
// Normalizing an already normalized record is a no-op.
func Normalize(r *Record) error {
	if r == nil {
		return nil
	}
	r.ExternalID = strings.TrimSpace(r.ExternalID)

	bd, err := normalizeBirthdate(strings.TrimSpace(r.BirthDate))
	if err != nil {
		return err
	}
	r.BirthDate = bd
	r.Sex = normalizeSex(r.Sex)
	r.Race = normalizeRace(r.Race)

	names := r.Name[:0]
	for _, n := range r.Name {
		n.Family = strings.TrimSpace(n.Family)
		n.Suffix = strings.TrimSpace(n.Suffix)
		given := n.Given[:0]
		for _, g := range n.Given {
			if g = strings.TrimSpace(g); g != "" {
				given = append(given, g)
			}
		}
		n.Given = given
		if n.Family != "" || len(n.Given) > 0 || n.Suffix != "" {
			names = append(names, n)
		}
	}
	r.Name = names

	addrs := r.Address[:0]
	for _, a := range r.Address {
		lines := a.Line[:0]
		for _, l := range a.Line {
			if l = normalizeStreetLine(l); l != "" {
				lines = append(lines, l)
			}
		}
		a.Line = lines
		a.City = strings.TrimSpace(a.City)
		a.County = strings.TrimSpace(a.County)
		a.State = normalizeState(a.State)
		a.PostalCode = normalizeZip(a.PostalCode)
		if len(a.Line) > 0 || a.City != "" || a.State != "" || a.PostalCode != "" || a.County != "" {
			addrs = append(addrs, a)
		}
	}
	r.Address = addrs

	tels := r.Telecom[:0]
	for _, t := range r.Telecom {
		t.System = strings.ToLower(strings.TrimSpace(t.System))
		t.Value = strings.TrimSpace(t.Value)
		if t.System == "phone" {
			t.Value = normalizePhone(t.Value)
		}
		if t.Value != "" {
			tels = append(tels, t)
		}
	}
	r.Telecom = tels

	ids := r.Identifiers[:0]
	for _, id := range r.Identifiers {
		id.Type = strings.ToUpper(strings.TrimSpace(id.Type))
		id.Authority = strings.TrimSpace(id.Authority)
		id.Value = strings.TrimSpace(id.Value)
		if id.Value != "" {
			ids = append(ids, id)
		}
	}
	r.Identifiers = ids

	return nil
}

// normalizeBirthdate accepts YYYY-MM-DD, YYYY/MM/DD, MM/DD/YYYY and
// MM/DD/YY. Two-digit years pivot on the current year: 19YY when YY is
// greater than the current two-digit year, 20YY otherwise.
func normalizeBirthdate(s string) (string, error) {
	if s == "" {
		return "", nil
	}
	var t time.Time
	var err error
	switch {
	case strings.Count(s, "-") == 2:
		t, err = time.Parse("2006-1-2", s)
	case strings.Count(s, "/") == 2:
		parts := strings.Split(s, "/")
		if len(parts[0]) == 4 {
			t, err = time.Parse("2006/1/2", s)
			break
		}
		if len(parts[2]) == 2 {
			yy, convErr := strconv.Atoi(parts[2])
			if convErr != nil {
				return "", fmt.Errorf("%w: %q", ErrInvalidBirthdate, s)
			}
			year := 2000 + yy
			if yy > time.Now().UTC().Year()%100 {
				year = 1900 + yy
			}
			s = parts[0] + "/" + parts[1] + "/" + strconv.Itoa(year)
		}
		t, err = time.Parse("1/2/2006", s)
	default:
		err = fmt.Errorf("unrecognized format")
	}
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidBirthdate, s)
	}
	if t.After(time.Now().UTC()) {
		return "", fmt.Errorf("%w: %q is in the future", ErrInvalidBirthdate, s)
	}
	return t.Format("2006-01-02"), nil
}

func normalizeSex(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "male", "1":
		return "M"
	case "f", "female", "2":
		return "F"
	}
	return ""
}

// raceCategories maps free-text race descriptions to OMB category tokens.
// Category tokens map to themselves so normalization is idempotent.
var raceCategories = map[string]string{
	"american indian": "AMERICAN_INDIAN", "alaska native": "AMERICAN_INDIAN",
	"american indian or alaska native": "AMERICAN_INDIAN",
	"asian":                            "ASIAN",
	"black":                            "BLACK", "african american": "BLACK",
	"black or african american": "BLACK",
	"hawaiian":                   "HAWAIIAN", "native hawaiian": "HAWAIIAN",
	"pacific islander": "HAWAIIAN",
	"native hawaiian or other pacific islander": "HAWAIIAN",
	"white": "WHITE", "caucasian": "WHITE",
	"other":   "OTHER",
	"unknown": "UNKNOWN", "asked unknown": "ASKED_UNKNOWN",
}

func normalizeRace(s string) string {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "_", " ")
	return raceCategories[key]
}

// normalizePhone strips everything but digits and drops a leading US
// country code, leaving the 10-digit national number. Shorter digit strings
// are kept as-is so partial numbers still block on their last four digits.
func normalizePhone(s string) string {
	digits := extractDigits(s)
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

func normalizeZip(s string) string {
	digits := extractDigits(s)
	if len(digits) < 5 {
		return ""
	}
	return digits[:5]
}

func extractDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeState(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if len(s) == 2 {
		code := strings.ToUpper(s)
		if stateCodes[code] {
			return code
		}
		return ""
	}
	return stateNames[strings.ToLower(s)]
}

// normalizeStreetLine collapses whitespace and rewrites a trailing street
// suffix to its USPS abbreviation ("123 Main Street" -> "123 Main ST").
func normalizeStreetLine(line string) string {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return ""
	}
	last := strings.TrimRight(tokens[len(tokens)-1], ".,")
	if abbr, ok := streetSuffixes[strings.ToLower(last)]; ok {
		tokens[len(tokens)-1] = abbr
	}
	return strings.Join(tokens, " ")
}

var stateCodes = map[string]bool{
	"AL": true, "AK": true, "AZ": true, "AR": true, "CA": true, "CO": true,
	"CT": true, "DE": true, "FL": true, "GA": true, "HI": true, "ID": true,
	"IL": true, "IN": true, "IA": true, "KS": true, "KY": true, "LA": true,
	"ME": true, "MD": true, "MA": true, "MI": true, "MN": true, "MS": true,
	"MO": true, "MT": true, "NE": true, "NV": true, "NH": true, "NJ": true,
	"NM": true, "NY": true, "NC": true, "ND": true, "OH": true, "OK": true,
	"OR": true, "PA": true, "RI": true, "SC": true, "SD": true, "TN": true,
	"TX": true, "UT": true, "VT": true, "VA": true, "WA": true, "WV": true,
	"WI": true, "WY": true, "DC": true, "PR": true, "GU": true, "VI": true,
	"AS": true, "MP": true,
}

var stateNames = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT",
	"delaware": "DE", "florida": "FL", "georgia": "GA", "hawaii": "HI",
	"idaho": "ID", "illinois": "IL", "indiana": "IN", "iowa": "IA",
	"kansas": "KS", "kentucky": "KY", "louisiana": "LA", "maine": "ME",
	"maryland": "MD", "massachusetts": "MA", "michigan": "MI",
	"minnesota": "MN", "mississippi": "MS", "missouri": "MO",
	"montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM",
	"new york": "NY", "north carolina": "NC", "north dakota": "ND",
	"ohio": "OH", "oklahoma": "OK", "oregon": "OR", "pennsylvania": "PA",
	"rhode island": "RI", "south carolina": "SC", "south dakota": "SD",
	"tennessee": "TN", "texas": "TX", "utah": "UT", "vermont": "VT",
	"virginia": "VA", "washington": "WA", "west virginia": "WV",
	"wisconsin": "WI", "wyoming": "WY",
	"district of columbia": "DC", "puerto rico": "PR", "guam": "GU",
	"virgin islands": "VI", "american samoa": "AS",
	"northern mariana islands": "MP",
}

// streetSuffixes maps street-type words (and their already-abbreviated
// spellings, so normalization is idempotent) to the USPS abbreviation.
var streetSuffixes = map[string]string{
	"alley": "ALY", "aly": "ALY",
	"avenue": "AV", "ave": "AV", "av": "AV",
	"boulevard": "BLVD", "blvd": "BLVD",
	"circle": "CIR", "cir": "CIR",
	"court": "CT", "ct": "CT",
	"cove": "CV", "cv": "CV",
	"creek": "CRK", "crk": "CRK",
	"crescent": "CRES", "cres": "CRES",
	"crossing": "XING", "xing": "XING",
	"drive": "DR", "dr": "DR",
	"expressway": "EXPY", "expy": "EXPY",
	"extension": "EXT", "ext": "EXT",
	"freeway": "FWY", "fwy": "FWY",
	"grove": "GRV", "grv": "GRV",
	"heights": "HTS", "hts": "HTS",
	"highway": "HWY", "hwy": "HWY",
	"hill": "HL", "hl": "HL",
	"hills": "HLS", "hls": "HLS",
	"junction": "JCT", "jct": "JCT",
	"lake": "LK", "lk": "LK",
	"landing": "LNDG", "lndg": "LNDG",
	"lane": "LN", "ln": "LN",
	"loop":  "LOOP",
	"manor": "MNR", "mnr": "MNR",
	"mount": "MT", "mt": "MT",
	"mountain": "MTN", "mtn": "MTN",
	"park":    "PARK",
	"parkway": "PKWY", "pkwy": "PKWY",
	"pass":  "PASS",
	"path":  "PATH",
	"pike":  "PIKE",
	"place": "PL", "pl": "PL",
	"plaza": "PLZ", "plz": "PLZ",
	"point": "PT", "pt": "PT",
	"ridge": "RDG", "rdg": "RDG",
	"road": "RD", "rd": "RD",
	"route": "RTE", "rte": "RTE",
	"row": "ROW",
	"run": "RUN",
	"square": "SQ", "sq": "SQ",
	"station": "STA", "sta": "STA",
	"street": "ST", "str": "ST", "st": "ST",
	"terrace": "TER", "ter": "TER",
	"trail": "TRL", "trl": "TRL",
	"turnpike": "TPKE", "tpke": "TPKE",
	"valley": "VLY", "vly": "VLY",
	"view": "VW", "vw": "VW",
	"village": "VLG", "vlg": "VLG",
	"walk": "WALK",
	"way":  "WAY",
}
