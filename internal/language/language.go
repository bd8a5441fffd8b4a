package language

import (
	"strings"

	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Default is used when no language is given.
const Default = "English"

type entry struct {
	code2   string // ISO 639-1
	code3   string // ISO 639-2/T
	alt3    string // ISO 639-2/B, e.g. "fre" next to "fra"
	display string
}

// common covers the languages people type most, including the bibliographic
// codes x/text does not accept.
var common = []entry{
	{"en", "eng", "", "English"},
	{"es", "spa", "", "Spanish"},
	{"fr", "fra", "fre", "French"},
	{"de", "deu", "ger", "German"},
	{"it", "ita", "", "Italian"},
	{"pt", "por", "", "Portuguese"},
	{"ja", "jpn", "", "Japanese"},
	{"ko", "kor", "", "Korean"},
	{"zh", "zho", "chi", "Chinese"},
	{"ru", "rus", "", "Russian"},
	{"ar", "ara", "", "Arabic"},
	{"hi", "hin", "", "Hindi"},
	{"nl", "nld", "dut", "Dutch"},
	{"pl", "pol", "", "Polish"},
	{"sv", "swe", "", "Swedish"},
	{"da", "dan", "", "Danish"},
	{"no", "nor", "", "Norwegian"},
	{"fi", "fin", "", "Finnish"},
}

var index map[string]*entry

func init() {
	index = make(map[string]*entry, len(common)*4)
	for i := range common {
		e := &common[i]
		index[e.code2] = e
		index[e.code3] = e
		if e.alt3 != "" {
			index[e.alt3] = e
		}
		index[strings.ToLower(e.display)] = e
	}
}

// Canonical resolves a language code, tag or name to its English display
// name. Empty input yields Default.
func Canonical(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return Default
	}
	if e, ok := index[strings.ToLower(value)]; ok {
		return e.display
	}
	if name := tagName(value); name != "" {
		return name
	}
	return value
}

// ToISO2 returns the ISO 639-1 code for a recognized language, or "".
func ToISO2(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	if e, ok := index[value]; ok {
		return e.code2
	}
	tag, err := xlanguage.Parse(value)
	if err != nil {
		return ""
	}
	base, confidence := tag.Base()
	if confidence == xlanguage.No {
		return ""
	}
	code := base.String()
	if len(code) != 2 {
		return ""
	}
	return code
}

func tagName(value string) string {
	// single words longer than three letters are names, not tags
	if !strings.ContainsAny(value, "-_") && len(value) > 3 {
		return ""
	}
	tag, err := xlanguage.Parse(strings.ReplaceAll(value, "_", "-"))
	if err != nil || tag == xlanguage.Und {
		return ""
	}
	return display.English.Tags().Name(tag)
}
