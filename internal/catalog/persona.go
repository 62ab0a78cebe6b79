package catalog

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/gosimple/slug"
)

// Persona is the display identity of a simulated user.
type Persona struct {
	Name  string
	Email string
}

type namePool struct {
	first   []string
	last    []string
	domains []string
}

var namePools = map[string]namePool{
	"US": {
		first:   []string{"James", "Mary", "Robert", "Patricia", "Michael", "Jennifer", "David", "Linda", "Emily", "Daniel"},
		last:    []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Miller", "Davis", "Wilson", "Moore", "Taylor"},
		domains: []string{"gmail.com", "yahoo.com", "hotmail.com", "outlook.com"},
	},
	"UK": {
		first:   []string{"Oliver", "Amelia", "Harry", "Isla", "George", "Ava", "Jack", "Olivia", "Charlie", "Sophie"},
		last:    []string{"Evans", "Thomas", "Roberts", "Walker", "Wright", "Hughes", "Green", "Hall", "Wood", "Clarke"},
		domains: []string{"gmail.com", "hotmail.co.uk", "yahoo.co.uk", "outlook.com"},
	},
	"DE": {
		first:   []string{"Lukas", "Anna", "Jonas", "Lea", "Felix", "Marie", "Paul", "Sophie", "Jürgen", "Hannah"},
		last:    []string{"Müller", "Schmidt", "Schneider", "Fischer", "Weber", "Meyer", "Wagner", "Becker", "Schulz", "Hoffmann"},
		domains: []string{"gmail.com", "web.de", "gmx.de", "t-online.de"},
	},
	"IN": {
		first:   []string{"Aarav", "Priya", "Vihaan", "Ananya", "Arjun", "Diya", "Rohan", "Kavya", "Ishaan", "Saanvi"},
		last:    []string{"Sharma", "Verma", "Patel", "Gupta", "Singh", "Reddy", "Iyer", "Nair", "Kumar", "Joshi"},
		domains: []string{"gmail.com", "yahoo.co.in", "rediffmail.com", "outlook.com"},
	},
	"JP": {
		first:   []string{"Haruto", "Yui", "Sota", "Hina", "Yuto", "Aoi", "Ren", "Sakura", "Riku", "Mei"},
		last:    []string{"Sato", "Suzuki", "Takahashi", "Tanaka", "Watanabe", "Ito", "Yamamoto", "Nakamura", "Kobayashi", "Kato"},
		domains: []string{"gmail.com", "yahoo.co.jp", "docomo.ne.jp", "outlook.jp"},
	},
	"BR": {
		first:   []string{"João", "Maria", "Pedro", "Ana", "Lucas", "Júlia", "Gabriel", "Beatriz", "Rafael", "Larissa"},
		last:    []string{"Silva", "Santos", "Oliveira", "Souza", "Lima", "Pereira", "Costa", "Rodrigues", "Almeida", "Nascimento"},
		domains: []string{"gmail.com", "uol.com.br", "bol.com.br", "hotmail.com"},
	},
}

// NewPersona draws a name local to country and derives a free-mail address
// tagged with the first eight characters of userID.
func NewPersona(rng *rand.Rand, country, userID string) Persona {
	pool, ok := namePools[strings.ToUpper(strings.TrimSpace(country))]
	if !ok {
		pool = namePools["US"]
	}
	first := pool.first[rng.Intn(len(pool.first))]
	last := pool.last[rng.Intn(len(pool.last))]
	domain := pool.domains[rng.Intn(len(pool.domains))]

	handle := strings.ReplaceAll(slug.Make(first+" "+last), "-", ".")
	if rng.Intn(2) == 0 {
		handle = fmt.Sprintf("%s%d", handle, rng.Intn(100))
	}
	tag := userID
	if len(tag) > 8 {
		tag = tag[:8]
	}

	return Persona{
		Name:  first + " " + last,
		Email: fmt.Sprintf("%s_%s@%s", handle, tag, domain),
	}
}
