// Package normalize transforms raw source records into canonical form:
// cleaned text fields, mapped vocabulary, deduplicated skills, resolved URLs
// and recomputed quality/relevance scores. Every function is deterministic
// and side-effect free apart from logging.
package normalize

import (
	"html"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"studentjobs/collector-service/internal/model"
)

var (
	wsRe  = regexp.MustCompile(`\s+`)
	tagRe = regexp.MustCompile(`<[^>]*>`)
)

// Normalizer applies the canonical transform to job records. Construct with
// New; the zero value is not usable.
type Normalizer struct {
	weights  ScoreWeights
	baseURLs map[string]string // source id -> base URL for relative links
	log      *zap.SugaredLogger
}

// Option customises a Normalizer.
type Option func(*Normalizer)

// WithScoreWeights overrides the default scoring policy.
func WithScoreWeights(w ScoreWeights) Option {
	return func(n *Normalizer) { n.weights = w }
}

// WithBaseURLs sets the per-source base URLs used to resolve relative links.
func WithBaseURLs(m map[string]string) Option {
	return func(n *Normalizer) { n.baseURLs = m }
}

// New constructs a Normalizer with default score weights.
func New(log *zap.SugaredLogger, opts ...Option) *Normalizer {
	n := &Normalizer{
		weights:  DefaultScoreWeights(),
		baseURLs: map[string]string{},
		log:      log.Named("normalize"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Transform returns a normalized copy of job. The input is not mutated.
func (n *Normalizer) Transform(job model.CanonicalJob) model.CanonicalJob {
	start := time.Now()

	job.Title = CleanTitle(job.Title)
	job.Company.Name = CleanCompanyName(job.Company.Name)
	job.Description = StripHTML(job.Description)
	job.Requirements = StripHTML(job.Requirements)

	if job.Location != nil {
		loc := *job.Location
		loc.City = CleanCity(loc.City)
		if loc.City == "" && loc.Municipality != "" {
			if city, ok := municipalityCities[loc.Municipality]; ok {
				loc.City = city
			}
		}
		job.Location = &loc
	}

	job.EmploymentType = MapEmploymentType(job.EmploymentType)
	job.WorkingHoursType = MapWorkingHoursType(job.WorkingHoursType)
	job.Skills = NormalizeSkills(job.Skills)
	job.SourceURL = n.resolveURL(job.Source, job.SourceURL)

	relevance := n.weights.StudentRelevance(&job)
	meta := make(map[string]any, len(job.Metadata)+1)
	for k, v := range job.Metadata {
		meta[k] = v
	}
	meta["studentRelevanceScore"] = relevance
	job.Metadata = meta
	job.QualityScore = n.weights.Quality(&job, relevance)

	job.CollectingMetadata.ProcessingTimeMs += time.Since(start).Milliseconds()
	return job
}

// TransformAll maps Transform over a batch.
func (n *Normalizer) TransformAll(jobs []model.CanonicalJob) []model.CanonicalJob {
	out := make([]model.CanonicalJob, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, n.Transform(j))
	}
	return out
}

// CleanTitle trims, collapses whitespace, strips listing boilerplate
// prefixes and title-cases each word.
func CleanTitle(s string) string {
	s = collapse(s)
	lower := strings.ToLower(s)
	for _, prefix := range titleBoilerplate {
		if strings.HasPrefix(lower, prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			break
		}
	}
	return titleCase(s)
}

// CleanCompanyName trims, collapses whitespace and normalizes the casing of
// known legal-form suffixes (AB, Inc., Ltd, GmbH, ...).
func CleanCompanyName(s string) string {
	s = collapse(s)
	if s == "" {
		return s
	}
	words := strings.Fields(s)
	last := strings.ToLower(words[len(words)-1])
	if canonical, ok := legalSuffixes[last]; ok {
		words[len(words)-1] = canonical
	}
	return strings.Join(words, " ")
}

// CleanCity trims and collapses the city string and maps known aliases to
// their canonical names.
func CleanCity(s string) string {
	s = collapse(s)
	if canonical, ok := cityAliases[strings.ToLower(s)]; ok {
		return canonical
	}
	return s
}

// MapEmploymentType maps free-text employment vocabulary onto the canonical
// enumeration (Permanent/Temporary/Seasonal/Project/Internship). Unknown
// input is passed through cleaned.
func MapEmploymentType(s string) string {
	cleaned := collapse(s)
	lower := strings.ToLower(cleaned)
	for _, syn := range employmentSynonyms {
		if strings.Contains(lower, syn.substr) {
			return syn.canonical
		}
	}
	return cleaned
}

// MapWorkingHoursType maps working-hours vocabulary onto
// Full-time/Part-time/Flexible. Unknown input is passed through cleaned.
func MapWorkingHoursType(s string) string {
	cleaned := collapse(s)
	lower := strings.ToLower(cleaned)
	for _, syn := range workingHoursSynonyms {
		if strings.Contains(lower, syn.substr) {
			return syn.canonical
		}
	}
	return cleaned
}

// StripHTML removes markup, decodes entities and collapses whitespace.
func StripHTML(s string) string {
	if s == "" {
		return s
	}
	s = tagRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return collapse(s)
}

// NormalizeSkills deduplicates skills case-insensitively by canonical name.
// When the same skill appears both required and optional, required wins.
func NormalizeSkills(skills []model.SkillRef) []model.SkillRef {
	if len(skills) == 0 {
		return skills
	}
	index := map[string]int{}
	out := make([]model.SkillRef, 0, len(skills))
	for _, s := range skills {
		name := collapse(s.Name)
		if name == "" {
			continue
		}
		if canonical, ok := techCanonical[strings.ToLower(name)]; ok {
			name = canonical
		}
		key := strings.ToLower(name)
		if i, seen := index[key]; seen {
			if s.Required {
				out[i].Required = true
			}
			continue
		}
		index[key] = len(out)
		out = append(out, model.SkillRef{Name: name, Required: s.Required})
	}
	return out
}

// resolveURL resolves a relative source URL against the source's configured
// base URL. Unknown sources are left unresolved with a logged warning.
func (n *Normalizer) resolveURL(sourceID, raw string) string {
	if raw == "" || strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	base, ok := n.baseURLs[sourceID]
	if !ok {
		n.log.Warnw("relative URL with no base URL for source", "source", sourceID, "url", raw)
		return raw
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		n.log.Warnw("invalid base URL for source", "source", sourceID, "base", base)
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return baseURL.ResolveReference(ref).String()
}

func collapse(s string) string {
	return strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
