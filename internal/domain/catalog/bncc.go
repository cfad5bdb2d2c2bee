package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/edutracker/edutracker/internal/domain/shared"
)

// Stage is the education stage encoded in a BNCC code prefix.
type Stage string

const (
	StageFundamental Stage = "EF"
	StageMedio       Stage = "EM"
)

// Curricular components of Ensino Fundamental.
var fundamentalComponents = map[string]string{
	"LP": "Língua Portuguesa",
	"AR": "Arte",
	"EF": "Educação Física",
	"LI": "Língua Inglesa",
	"MA": "Matemática",
	"CI": "Ciências",
	"GE": "Geografia",
	"HI": "História",
	"ER": "Ensino Religioso",
}

// Knowledge areas of Ensino Médio.
var medioAreas = map[string]string{
	"LGG": "Linguagens",
	"LP":  "Língua Portuguesa",
	"MAT": "Matemática",
	"CNT": "Ciências da Natureza",
	"CHS": "Ciências Humanas e Sociais",
}

var (
	fundamentalCode = regexp.MustCompile(`^EF(\d)(\d)([A-Z]{2})(\d{2})$`)
	medioCode       = regexp.MustCompile(`^EM13([A-Z]{2,3})(\d{3})$`)
	gradeYear       = regexp.MustCompile(`^\s*(\d{1,2})`)
)

// Code is a parsed BNCC skill code such as EF05MA03 or EF15LP01.
//
// For Ensino Fundamental the two digits after the prefix name a single year
// when the first digit is 0 (EF05 = 5th year), otherwise an inclusive span
// of years (EF15 = 1st to 5th, EF69 = 6th to 9th).
type Code struct {
	Raw       string
	Stage     Stage
	FromYear  int
	ToYear    int
	Component string
	Sequence  int
}

// ParseCode parses and validates a BNCC code.
func ParseCode(raw string) (Code, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))

	if m := fundamentalCode.FindStringSubmatch(s); m != nil {
		first, _ := strconv.Atoi(m[1])
		second, _ := strconv.Atoi(m[2])
		from, to := first, second
		if first == 0 {
			from = second
		}
		if from < 1 || to > 9 || from > to {
			return Code{}, invalidCode(raw, "year span out of range")
		}
		if _, ok := fundamentalComponents[m[3]]; !ok {
			return Code{}, invalidCode(raw, "unknown curricular component "+m[3])
		}
		seq, _ := strconv.Atoi(m[4])
		if seq == 0 {
			return Code{}, invalidCode(raw, "sequence must start at 01")
		}
		return Code{Raw: s, Stage: StageFundamental, FromYear: from, ToYear: to, Component: m[3], Sequence: seq}, nil
	}

	if m := medioCode.FindStringSubmatch(s); m != nil {
		if _, ok := medioAreas[m[1]]; !ok {
			return Code{}, invalidCode(raw, "unknown knowledge area "+m[1])
		}
		seq, _ := strconv.Atoi(m[2])
		return Code{Raw: s, Stage: StageMedio, FromYear: 1, ToYear: 3, Component: m[1], Sequence: seq}, nil
	}

	return Code{}, invalidCode(raw, "does not match EFnnXXnn or EM13XXXnnn")
}

func invalidCode(raw, reason string) error {
	return shared.WrapError("catalog", "ParseCode", shared.ErrInvalidFormat,
		fmt.Sprintf("code %q: %s", raw, reason), shared.ErrInvalidBNCCCode)
}

// CoversYear reports whether the code applies to a school year.
func (c Code) CoversYear(year int) bool {
	return year >= c.FromYear && year <= c.ToYear
}

// IsSpan reports whether the code spans several years.
func (c Code) IsSpan() bool {
	return c.FromYear != c.ToYear
}

// ComponentName returns the display name of the curricular component.
func (c Code) ComponentName() string {
	if c.Stage == StageMedio {
		return medioAreas[c.Component]
	}
	return fundamentalComponents[c.Component]
}

// String returns the normalized code.
func (c Code) String() string {
	return c.Raw
}

// GradeYear extracts the school year from grade labels like "5º ano" or "9".
func GradeYear(grade string) (int, bool) {
	m := gradeYear.FindStringSubmatch(grade)
	if m == nil {
		return 0, false
	}
	y, err := strconv.Atoi(m[1])
	if err != nil || y < 1 || y > 9 {
		return 0, false
	}
	return y, true
}
