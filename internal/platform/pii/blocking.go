package pii

import (
	"fmt"
	"strings"
)

// BlockingKey identifies one blocking dimension. The numeric values are
// persisted in blocking_value.key_id and are part of the on-disk contract;
// they are never renumbered (2 is retired).
type BlockingKey int16

const (
	BlockBirthdate  BlockingKey = 1
	BlockSex        BlockingKey = 3
	BlockZip        BlockingKey = 4
	BlockFirstName  BlockingKey = 5
	BlockLastName   BlockingKey = 6
	BlockAddress    BlockingKey = 7
	BlockPhone      BlockingKey = 8
	BlockEmail      BlockingKey = 9
	BlockIdentifier BlockingKey = 10
)

var blockingKeyNames = map[BlockingKey]string{
	BlockBirthdate:  "BIRTHDATE",
	BlockSex:        "SEX",
	BlockZip:        "ZIP",
	BlockFirstName:  "FIRST_NAME",
	BlockLastName:   "LAST_NAME",
	BlockAddress:    "ADDRESS",
	BlockPhone:      "PHONE",
	BlockEmail:      "EMAIL",
	BlockIdentifier: "IDENTIFIER",
}

var blockingKeysByName = func() map[string]BlockingKey {
	m := make(map[string]BlockingKey, len(blockingKeyNames))
	for k, n := range blockingKeyNames {
		m[n] = k
	}
	return m
}()

func (k BlockingKey) String() string {
	if n, ok := blockingKeyNames[k]; ok {
		return n
	}
	return fmt.Sprintf("BlockingKey(%d)", int16(k))
}

// ParseBlockingKey resolves a configuration name ("BIRTHDATE", "ZIP", ...)
// to its stable key.
func ParseBlockingKey(s string) (BlockingKey, error) {
	if k, ok := blockingKeysByName[s]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("unknown blocking key %q", s)
}

// BlockingKeys returns all keys in id order.
func BlockingKeys() []BlockingKey {
	return []BlockingKey{
		BlockBirthdate, BlockSex, BlockZip, BlockFirstName, BlockLastName,
		BlockAddress, BlockPhone, BlockEmail, BlockIdentifier,
	}
}

// ExtractBlockingValues derives the values a record contributes for one
// blocking key. Values shorter than the key requires are dropped, never
// padded; multi-valued features contribute one value each, deduplicated.
func ExtractBlockingValues(r *Record, k BlockingKey) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(v string) {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	switch k {
	case BlockBirthdate:
		for _, v := range Values(r, FeatureBirthdate) {
			add(v)
		}
	case BlockSex:
		for _, v := range Values(r, FeatureSex) {
			add(v)
		}
	case BlockZip:
		for _, v := range Values(r, FeatureZip) {
			if len(v) >= 5 {
				add(v[:5])
			}
		}
	case BlockFirstName:
		for _, v := range Values(r, FeatureFirstName) {
			add(firstChars(strings.ToUpper(v), 4))
		}
	case BlockLastName:
		for _, v := range Values(r, FeatureLastName) {
			add(firstChars(strings.ToUpper(v), 4))
		}
	case BlockAddress:
		for _, v := range Values(r, FeatureAddress) {
			add(firstChars(strings.ToUpper(v), 4))
		}
	case BlockPhone:
		for _, v := range Values(r, FeaturePhone) {
			add(lastChars(v, 4))
		}
	case BlockEmail:
		for _, v := range Values(r, FeatureEmail) {
			add(firstChars(strings.ToLower(v), 4))
		}
	case BlockIdentifier:
		for _, id := range r.Identifiers {
			if id.Value == "" {
				continue
			}
			v := lastChars(id.Value, 4)
			if v == "" {
				continue
			}
			auth := id.Authority
			if len(auth) > 2 {
				auth = auth[:2]
			}
			add(id.Type + ":" + auth + ":" + v)
		}
	}
	return out
}

// firstChars returns the first n runes, or "" when the value is shorter.
func firstChars(s string, n int) string {
	r := []rune(s)
	if len(r) < n {
		return ""
	}
	return string(r[:n])
}

// lastChars returns the last n runes, or "" when the value is shorter.
func lastChars(s string, n int) string {
	r := []rune(s)
	if len(r) < n {
		return ""
	}
	return string(r[len(r)-n:])
}
