package hl7v2

import "sort"

// identifierTypes is the subset of HL7 table 0203 (identifier type) this
// deployment accepts. Algorithm configurations that qualify an identifier
// feature by type are validated against it.
var identifierTypes = map[string]string{
	"AN":  "Account number",
	"BR":  "Birth registry number",
	"DL":  "Driver's license number",
	"HC":  "Health card number",
	"MA":  "Patient Medicaid number",
	"MB":  "Member number",
	"MC":  "Patient's Medicare number",
	"MR":  "Medical record number",
	"NI":  "National unique individual identifier",
	"PI":  "Patient internal identifier",
	"PN":  "Person number",
	"PPN": "Passport number",
	"PRC": "Permanent resident card number",
	"PT":  "Patient external identifier",
	"SB":  "Social beneficiary identifier",
	"SN":  "Subscriber number",
	"SS":  "Social Security number",
	"TAX": "Tax ID number",
	"VN":  "Visit number",
	"WC":  "WIC identifier",
	"WCN": "Workers' compensation number",
}

// IsIdentifierType reports whether code is a known table 0203 code. Codes
// are upper-case in the table; matching is exact.
func IsIdentifierType(code string) bool {
	_, ok := identifierTypes[code]
	return ok
}

// IdentifierTypeDisplay returns the human-readable name of a table 0203
// code.
func IdentifierTypeDisplay(code string) (string, bool) {
	d, ok := identifierTypes[code]
	return d, ok
}

// IdentifierTypes returns the accepted codes in sorted order.
func IdentifierTypes() []string {
	out := make([]string, 0, len(identifierTypes))
	for code := range identifierTypes {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
