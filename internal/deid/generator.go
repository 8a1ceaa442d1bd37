package deid

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// Generator produces a synthetic stand-in for one original value.
type Generator func(original string) string

// GeneratorTable maps entity types to generators. Types without an entry
// fall back to Placeholder.
type GeneratorTable map[string]Generator

// Placeholder is the replacement used for entity types with no generator.
func Placeholder(entityType string) string {
	return "[REDACTED-" + entityType + "]"
}

// Generate returns the replacement for original under entityType.
func (t GeneratorTable) Generate(entityType, original string) string {
	if g, ok := t[entityType]; ok && g != nil {
		return g(original)
	}
	return Placeholder(entityType)
}

// With returns a copy of t with g registered for entityType.
func (t GeneratorTable) With(entityType string, g Generator) GeneratorTable {
	out := make(GeneratorTable, len(t)+1)
	for k, v := range t {
		out[k] = v
	}
	out[entityType] = g
	return out
}

// Static returns a generator that always yields s. Useful in tests.
func Static(s string) Generator {
	return func(string) string { return s }
}

// DefaultGenerators returns generators for every type in DefaultEntities,
// drawing dates from the decade the clock reads when the table is built.
func DefaultGenerators(seed uint64) GeneratorTable {
	return DecadeGenerators(seed, time.Now().Year())
}

// DecadeGenerators returns generators for every type in DefaultEntities
// with DATE_TIME stand-ins drawn from the decade containing year.
//
// Each generator is a pure function of (seed, decade, entity type,
// original): the same original always gets the same stand-in, across runs
// and processes. Numeric identifiers keep the masked layouts (XXX-XX-####);
// names and contact details come from a seeded faker and ignore the
// original.
func DecadeGenerators(seed uint64, year int) GeneratorTable {
	fake := func(entityType string, fn func(f *gofakeit.Faker) string) Generator {
		return func(original string) string {
			return fn(fakerFor(seed, entityType, original))
		}
	}
	digits := func(entityType, layout string, lo, hi int) Generator {
		return fake(entityType, func(f *gofakeit.Faker) string {
			return fmt.Sprintf(layout, f.Number(lo, hi))
		})
	}

	return GeneratorTable{
		"PERSON":            fake("PERSON", func(f *gofakeit.Faker) string { return f.Name() }),
		"EMAIL_ADDRESS":     fake("EMAIL_ADDRESS", func(f *gofakeit.Faker) string { return f.Email() }),
		"PHONE_NUMBER":      fake("PHONE_NUMBER", func(f *gofakeit.Faker) string { return f.PhoneFormatted() }),
		"US_SSN":            digits("US_SSN", "XXX-XX-%04d", 1000, 9999),
		"CREDIT_CARD":       digits("CREDIT_CARD", "XXXX-XXXX-XXXX-%04d", 1000, 9999),
		"US_BANK_NUMBER":    digits("US_BANK_NUMBER", "XXXXXXX%04d", 1000, 9999),
		"US_DRIVER_LICENSE": digits("US_DRIVER_LICENSE", "X%08d", 10000000, 99999999),
		"US_PASSPORT":       digits("US_PASSPORT", "X%08d", 10000000, 99999999),
		"US_ITIN":           digits("US_ITIN", "9XX-XX-%04d", 1000, 9999),
		"NRP":               digits("NRP", "XX-%04d-XX", 1000, 9999),
		"LOCATION":          fake("LOCATION", func(f *gofakeit.Faker) string { return f.City() }),
		"DATE_TIME":         fake("DATE_TIME", decadeDate(year-year%10)),
		"IP_ADDRESS":        fake("IP_ADDRESS", func(f *gofakeit.Faker) string { return f.IPv4Address() }),
		"DOMAIN_NAME":       fake("DOMAIN_NAME", func(f *gofakeit.Faker) string { return f.DomainName() }),
		"URL":               fake("URL", func(f *gofakeit.Faker) string { return f.URL() }),
	}
}

// decadeDate picks YYYY-MM-DD dates in the ten years from first.
func decadeDate(first int) func(f *gofakeit.Faker) string {
	start := time.Date(first, time.January, 1, 0, 0, 0, 0, time.UTC)
	days := int(start.AddDate(10, 0, 0).Sub(start).Hours() / 24)
	return func(f *gofakeit.Faker) string {
		return start.AddDate(0, 0, f.Number(0, days-1)).Format("2006-01-02")
	}
}

// fakerFor returns a faker seeded from the pair. A zero seed would make
// gofakeit pick a random one, so it is never produced.
func fakerFor(seed uint64, entityType, original string) *gofakeit.Faker {
	h := fnv.New64a()
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], seed)
	h.Write(b[:])
	h.Write([]byte(entityType))
	h.Write([]byte{0})
	h.Write([]byte(original))
	s := h.Sum64()
	if s == 0 {
		s = 1
	}
	return gofakeit.New(s)
}
