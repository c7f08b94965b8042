// Package sandbox generates synthetic demographic clusters for demo
// deployments and linkage evaluation. Each cluster is one simulated
// individual: a pristine base record plus noisy variants shaped like the
// disagreements real registration feeds produce (typos, nicknames, dropped
// fields, re-issued identifiers). Generation is reproducible for a given
// seed and never touches storage; the output is shaped to POST straight
// into the seed endpoint.
package sandbox

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/mpi/mpi/internal/platform/pii"
)

// Config controls the volume and shape of generated data.
type Config struct {
	Clusters          int   `json:"clusters"`
	RecordsPerCluster int   `json:"records_per_cluster"`
	Seed              int64 `json:"seed"`
}

// DefaultConfig returns a small, demo-sized configuration.
func DefaultConfig() Config {
	return Config{
		Clusters:          25,
		RecordsPerCluster: 3,
	}
}

// Cluster is one simulated individual. The JSON shape matches a cluster of
// the seed request body.
type Cluster struct {
	ExternalPersonID string       `json:"external_person_id"`
	Records          []pii.Record `json:"records"`
}

// ---------------------------------------------------------------------------
// Demographic pools
// ---------------------------------------------------------------------------

var firstNamesMale = []string{
	"James", "Robert", "John", "Michael", "David", "William", "Richard",
	"Joseph", "Thomas", "Christopher", "Charles", "Daniel", "Matthew",
	"Anthony", "Mark", "Steven", "Andrew", "Paul", "Joshua", "Kenneth",
}

var firstNamesFemale = []string{
	"Mary", "Patricia", "Jennifer", "Linda", "Elizabeth", "Barbara",
	"Susan", "Jessica", "Karen", "Sarah", "Lisa", "Nancy", "Sandra",
	"Margaret", "Ashley", "Emily", "Michelle", "Carol", "Amanda", "Dorothy",
}

var lastNames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller",
	"Davis", "Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez",
	"Wilson", "Anderson", "Thomas", "Taylor", "Moore", "Jackson", "Martin",
	"Shepard", "Vance", "Alenko", "Lawson",
}

// nicknames maps formal given names to the short forms feeds report.
var nicknames = map[string]string{
	"James":       "Jim",
	"Robert":      "Bob",
	"John":        "Jack",
	"Michael":     "Mike",
	"David":       "Dave",
	"William":     "Bill",
	"Richard":     "Rick",
	"Joseph":      "Joe",
	"Thomas":      "Tom",
	"Christopher": "Chris",
	"Charles":     "Chuck",
	"Daniel":      "Dan",
	"Matthew":     "Matt",
	"Anthony":     "Tony",
	"Steven":      "Steve",
	"Andrew":      "Andy",
	"Joshua":      "Josh",
	"Kenneth":     "Ken",
	"Patricia":    "Pat",
	"Jennifer":    "Jen",
	"Elizabeth":   "Liz",
	"Barbara":     "Barb",
	"Susan":       "Sue",
	"Jessica":     "Jess",
	"Margaret":    "Peggy",
	"Michelle":    "Shelly",
	"Amanda":      "Mandy",
	"Dorothy":     "Dot",
}

var streets = []string{
	"123 Main St", "456 Oak Ave", "789 Maple Dr", "321 Elm St",
	"654 Cedar Ln", "987 Pine Rd", "147 Birch Ct", "258 Walnut Blvd",
	"369 Cherry Way", "741 Spruce Ter", "852 Willow Pl", "963 Ash St",
}

// locale keeps city, state, and zip mutually consistent so blocking on ZIP
// behaves like real data.
type locale struct {
	city  string
	state string
	zip   string
}

var locales = []locale{
	{"Springfield", "IL", "62701"},
	{"Columbus", "OH", "43004"},
	{"Austin", "TX", "78701"},
	{"Portland", "OR", "97201"},
	{"Madison", "WI", "53703"},
	{"Richmond", "VA", "23220"},
	{"Denver", "CO", "80202"},
	{"Phoenix", "AZ", "85001"},
	{"Nashville", "TN", "37201"},
	{"Sacramento", "CA", "94203"},
}

// authorities are assigning-authority codes for medical record numbers.
var authorities = []string{"MGH", "SLMC", "CHP", "RMA", "VCMG", "NHS"}

// ---------------------------------------------------------------------------
// Generator
// ---------------------------------------------------------------------------

// Generator produces deterministic synthetic records.
type Generator struct {
	rng     *rand.Rand
	counter uint64
}

// NewGenerator returns a generator seeded for reproducibility. If seed is 0
// a time-based seed is chosen.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

func (g *Generator) pick(pool []string) string {
	return pool[g.rng.Intn(len(pool))]
}

func (g *Generator) nextMRN() string {
	g.counter++
	return fmt.Sprintf("%06d%03d", g.rng.Intn(1000000), g.counter%1000)
}

func (g *Generator) birthdate() string {
	y := 1940 + g.rng.Intn(2015-1940+1)
	m := 1 + g.rng.Intn(12)
	d := 1 + g.rng.Intn(28)
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

func (g *Generator) phone() string {
	return fmt.Sprintf("(%03d) %03d-%04d",
		200+g.rng.Intn(800),
		200+g.rng.Intn(800),
		g.rng.Intn(10000),
	)
}

// BaseRecord generates one pristine individual.
func (g *Generator) BaseRecord() pii.Record {
	var first string
	var sex string
	if g.rng.Intn(2) == 0 {
		first = g.pick(firstNamesMale)
		sex = "M"
	} else {
		first = g.pick(firstNamesFemale)
		sex = "F"
	}
	last := g.pick(lastNames)
	loc := locales[g.rng.Intn(len(locales))]

	rec := pii.Record{
		BirthDate: g.birthdate(),
		Sex:       sex,
		Name: []pii.Name{
			{Family: last, Given: []string{first}},
		},
		Address: []pii.Address{
			{
				Line:       []string{g.pick(streets)},
				City:       loc.city,
				State:      loc.state,
				PostalCode: loc.zip,
			},
		},
		Telecom: []pii.Telecom{
			{System: "phone", Value: g.phone()},
			{System: "email", Value: strings.ToLower(first + "." + last + "@example.com")},
		},
		Identifiers: []pii.Identifier{
			{Type: "MR", Authority: g.pick(authorities), Value: g.nextMRN()},
		},
	}
	return rec
}

// Variant returns a noisy copy of base: one to two registration-style
// disagreements drawn at random.
func (g *Generator) Variant(base *pii.Record) pii.Record {
	rec := *base.Clone()

	ops := 1 + g.rng.Intn(2)
	for i := 0; i < ops; i++ {
		switch g.rng.Intn(6) {
		case 0:
			g.typoFamily(&rec)
		case 1:
			g.nicknameGiven(&rec)
		case 2:
			// A different facility issues its own medical record number.
			if len(rec.Identifiers) > 0 {
				rec.Identifiers[0].Authority = g.pick(authorities)
				rec.Identifiers[0].Value = g.nextMRN()
			}
		case 3:
			g.dropTelecom(&rec)
		case 4:
			// Street address missing; city/state/zip survive.
			if len(rec.Address) > 0 {
				rec.Address[0].Line = nil
			}
		case 5:
			// Phone reported in a different format. Normalization erases
			// this, which is exactly the point.
			for j, t := range rec.Telecom {
				if t.System == "phone" {
					digits := strings.Map(keepDigit, t.Value)
					rec.Telecom[j].Value = digits
				}
			}
		}
	}
	return rec
}

// typoFamily swaps two adjacent letters in the family name.
func (g *Generator) typoFamily(rec *pii.Record) {
	if len(rec.Name) == 0 {
		return
	}
	runes := []rune(rec.Name[0].Family)
	if len(runes) < 3 {
		return
	}
	// Leave the first letter alone so blocking on first characters holds.
	i := 1 + g.rng.Intn(len(runes)-2)
	runes[i], runes[i+1] = runes[i+1], runes[i]
	rec.Name[0].Family = string(runes)
}

func (g *Generator) nicknameGiven(rec *pii.Record) {
	if len(rec.Name) == 0 || len(rec.Name[0].Given) == 0 {
		return
	}
	if nick, ok := nicknames[rec.Name[0].Given[0]]; ok {
		rec.Name[0].Given[0] = nick
	}
}

func (g *Generator) dropTelecom(rec *pii.Record) {
	if len(rec.Telecom) == 0 {
		return
	}
	i := g.rng.Intn(len(rec.Telecom))
	rec.Telecom = append(rec.Telecom[:i], rec.Telecom[i+1:]...)
}

func keepDigit(r rune) rune {
	if r >= '0' && r <= '9' {
		return r
	}
	return -1
}

// GenerateClusters produces cfg.Clusters simulated individuals with
// cfg.RecordsPerCluster records each: a base record plus variants.
func (g *Generator) GenerateClusters(cfg Config) []Cluster {
	if cfg.Clusters <= 0 {
		cfg.Clusters = DefaultConfig().Clusters
	}
	if cfg.RecordsPerCluster <= 0 {
		cfg.RecordsPerCluster = DefaultConfig().RecordsPerCluster
	}

	clusters := make([]Cluster, 0, cfg.Clusters)
	for i := 0; i < cfg.Clusters; i++ {
		base := g.BaseRecord()
		records := []pii.Record{base}
		for len(records) < cfg.RecordsPerCluster {
			records = append(records, g.Variant(&base))
		}
		clusters = append(clusters, Cluster{
			ExternalPersonID: fmt.Sprintf("sbx-%04d", i+1),
			Records:          records,
		})
	}
	return clusters
}
