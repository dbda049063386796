package normalize

import (
	"strings"

	"studentjobs/collector-service/internal/model"
)

// ScoreWeights is the scoring policy for quality and student-relevance
// scores. The defaults are tuned by hand, not derived from data; treat them
// as configuration, not business rules.
type ScoreWeights struct {
	// Title length bands and their points.
	TitleShortMax, TitleMediumMax      int
	TitleShort, TitleMedium, TitleLong int
	// Description length bands and their points.
	DescBand1Max, DescBand2Max, DescBand3Max   int
	DescBand1, DescBand2, DescBand3, DescBand4 int
	// Completeness caps.
	CompanyMax, LocationMax, ApplicationMax int
	// Skills: points per skill, capped.
	SkillPoints, SkillMax int
	// Relevance contribution: relevance/RelevanceDivisor, capped.
	RelevanceDivisor, RelevanceMax int

	// Student-relevance weights.
	TitleKeyword, DescKeyword                        int
	PartTimeBonus, TemporaryBonus, NoExperienceBonus int
	RelevanceRawMax                                  int
}

// DefaultScoreWeights returns the standard scoring policy.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		TitleShortMax: 15, TitleMediumMax: 40,
		TitleShort: 5, TitleMedium: 10, TitleLong: 15,
		DescBand1Max: 100, DescBand2Max: 400, DescBand3Max: 1500,
		DescBand1: 5, DescBand2: 10, DescBand3: 20, DescBand4: 30,
		CompanyMax: 10, LocationMax: 10, ApplicationMax: 15,
		SkillPoints: 2, SkillMax: 10,
		RelevanceDivisor: 10, RelevanceMax: 10,

		TitleKeyword: 2, DescKeyword: 1,
		PartTimeBonus: 2, TemporaryBonus: 2, NoExperienceBonus: 2,
		// 7 keywords * (2+1) + three bonuses of 2.
		RelevanceRawMax: 27,
	}
}

// Quality computes the additive 0-100 quality score for a normalized job.
// relevance is the already-computed student-relevance sub-score.
func (w ScoreWeights) Quality(job *model.CanonicalJob, relevance int) int {
	score := 0

	switch n := len(job.Title); {
	case n == 0:
	case n <= w.TitleShortMax:
		score += w.TitleShort
	case n <= w.TitleMediumMax:
		score += w.TitleMedium
	default:
		score += w.TitleLong
	}

	switch n := len(job.Description); {
	case n == 0:
	case n <= w.DescBand1Max:
		score += w.DescBand1
	case n <= w.DescBand2Max:
		score += w.DescBand2
	case n <= w.DescBand3Max:
		score += w.DescBand3
	default:
		score += w.DescBand4
	}

	score += capped(companyCompleteness(job), w.CompanyMax)
	score += capped(locationCompleteness(job), w.LocationMax)
	score += capped(applicationCompleteness(job), w.ApplicationMax)
	score += capped(len(job.Skills)*w.SkillPoints, w.SkillMax)
	score += capped(relevance/w.RelevanceDivisor, w.RelevanceMax)

	return capped(score, 100)
}

// StudentRelevance computes the 0-100 student-relevance sub-score: keyword
// hits in title and description plus part-time, short-duration and
// no-experience bonuses, normalized against RelevanceRawMax.
func (w ScoreWeights) StudentRelevance(job *model.CanonicalJob) int {
	title := strings.ToLower(job.Title)
	desc := strings.ToLower(job.Description)

	raw := 0
	for _, kw := range relevanceKeywords {
		if strings.Contains(title, kw) {
			raw += w.TitleKeyword
		}
		if strings.Contains(desc, kw) {
			raw += w.DescKeyword
		}
	}

	if job.WorkingHoursType == "Part-time" {
		raw += w.PartTimeBonus
	}
	if shortDuration(job) {
		raw += w.TemporaryBonus
	}
	if strings.Contains(desc, "no experience required") ||
		strings.Contains(desc, "no experience needed") ||
		strings.Contains(desc, "ingen erfarenhet") {
		raw += w.NoExperienceBonus
	}

	return capped(raw*100/w.RelevanceRawMax, 100)
}

func shortDuration(job *model.CanonicalJob) bool {
	if job.EmploymentType == "Temporary" || job.EmploymentType == "Seasonal" {
		return true
	}
	d := strings.ToLower(job.Duration)
	return strings.Contains(d, "summer") || strings.Contains(d, "sommar") ||
		strings.Contains(d, "month") || strings.Contains(d, "månad")
}

func companyCompleteness(job *model.CanonicalJob) int {
	score := 0
	if job.Company.Name != "" {
		score += 4
	}
	if job.Company.Website != "" {
		score += 3
	}
	if job.Company.Email != "" || job.Company.Phone != "" {
		score += 3
	}
	return score
}

func locationCompleteness(job *model.CanonicalJob) int {
	if job.Location == nil {
		return 0
	}
	score := 0
	if job.Location.City != "" {
		score += 4
	}
	if job.Location.Municipality != "" || job.Location.Region != "" {
		score += 3
	}
	if job.Location.Address != "" || job.Location.PostalCode != "" {
		score += 3
	}
	return score
}

func applicationCompleteness(job *model.CanonicalJob) int {
	if job.ApplicationDetails == nil {
		return 0
	}
	score := 0
	if job.ApplicationDetails.URL != "" || job.ApplicationDetails.Email != "" {
		score += 8
	}
	if job.ApplicationDetails.Deadline != nil {
		score += 4
	}
	if job.ApplicationDetails.Instructions != "" {
		score += 3
	}
	return score
}

func capped(v, max int) int {
	if v > max {
		return max
	}
	return v
}
