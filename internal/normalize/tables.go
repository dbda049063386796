package normalize

// Fixed lookup tables used by the normalizer. These encode source vocabulary
// quirks observed in collected data; extend as new variants show up.

// cityAliases maps known abbreviations and alternate spellings to canonical
// city names.
var cityAliases = map[string]string{
	"sthlm":      "Stockholm",
	"stockolm":   "Stockholm",
	"gbg":        "Göteborg",
	"gothenburg": "Göteborg",
	"malmoe":     "Malmö",
	"linkoping":  "Linköping",
	"orebro":     "Örebro",
	"uppsala":    "Uppsala",
}

// municipalityCities maps Swedish municipality codes to city names, used when
// a source supplies only the code.
var municipalityCities = map[string]string{
	"0180": "Stockholm",
	"1480": "Göteborg",
	"1280": "Malmö",
	"0380": "Uppsala",
	"1880": "Örebro",
	"0580": "Linköping",
	"1281": "Lund",
	"1490": "Borås",
	"2480": "Umeå",
	"2580": "Luleå",
}

// legalSuffixes maps lowercased company legal-form suffixes to their
// canonical casing.
var legalSuffixes = map[string]string{
	"ab":   "AB",
	"hb":   "HB",
	"kb":   "KB",
	"as":   "AS",
	"oy":   "Oy",
	"inc":  "Inc.",
	"inc.": "Inc.",
	"ltd":  "Ltd",
	"ltd.": "Ltd",
	"llc":  "LLC",
	"gmbh": "GmbH",
}

// titleBoilerplate lists listing-ad prefixes stripped from titles before
// casing, matched case-insensitively.
var titleBoilerplate = []string{
	"looking for:",
	"now hiring:",
	"we are hiring:",
	"hiring:",
	"wanted:",
	"job ad:",
	"vacancy:",
	"sökes:",
	"vi söker:",
}

// employmentSynonyms maps substrings of source employment-type text to the
// canonical enumeration. Checked in order; first match wins.
var employmentSynonyms = []struct{ substr, canonical string }{
	{"intern", "Internship"},
	{"praktik", "Internship"},
	{"trainee", "Internship"},
	{"season", "Seasonal"},
	{"summer", "Seasonal"},
	{"sommar", "Seasonal"},
	{"project", "Project"},
	{"projekt", "Project"},
	{"temp", "Temporary"},
	{"vikariat", "Temporary"},
	{"visstid", "Temporary"},
	{"fixed", "Temporary"},
	{"contract", "Temporary"},
	{"perm", "Permanent"},
	{"tillsvidare", "Permanent"},
	{"full", "Permanent"},
}

// workingHoursSynonyms maps substrings of working-hours text to the canonical
// enumeration.
var workingHoursSynonyms = []struct{ substr, canonical string }{
	{"part", "Part-time"},
	{"deltid", "Part-time"},
	{"timanst", "Part-time"}, // timanställning, hourly
	{"hourly", "Part-time"},
	{"flex", "Flexible"},
	{"varierande", "Flexible"},
	{"full", "Full-time"},
	{"heltid", "Full-time"},
}

// techCanonical maps lowercased technology-name variants to their canonical
// spelling, used when deduplicating skills.
var techCanonical = map[string]string{
	"node":       "Node.js",
	"nodejs":     "Node.js",
	"node.js":    "Node.js",
	"golang":     "Go",
	"go":         "Go",
	"js":         "JavaScript",
	"javascript": "JavaScript",
	"ts":         "TypeScript",
	"typescript": "TypeScript",
	"react":      "React",
	"reactjs":    "React",
	"react.js":   "React",
	"vue":        "Vue.js",
	"vuejs":      "Vue.js",
	"vue.js":     "Vue.js",
	"postgres":   "PostgreSQL",
	"postgresql": "PostgreSQL",
	"k8s":        "Kubernetes",
	"kubernetes": "Kubernetes",
	"c#":         "C#",
	"csharp":     "C#",
	"dotnet":     ".NET",
	".net":       ".NET",
	"py":         "Python",
	"python":     "Python",
}

// relevanceKeywords are matched in title (weight 2) and description
// (weight 1) when computing the student-relevance sub-score.
var relevanceKeywords = []string{
	"student", "internship", "intern", "trainee", "part-time", "extra", "junior",
}
