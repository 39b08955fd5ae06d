package orchestrator

import (
	"math"

	"github.com/auspexhq/insight-api/internal/domain"
)

// categoryMerge is the pair-matched union of one category (insights or
// recommendations) across both engines.
type categoryMerge struct {
	union         []string
	agreed        int
	disagreements []string
}

// matchCategory pairs each primary item with the first unmatched
// secondary item the similarity accepts. Matched pairs keep the primary
// wording; unmatched items from either side land in the union after the
// primary items, and in the disagreement list.
func matchCategory(primary, secondary []string, sim Similarity) categoryMerge {
	matched := make([]bool, len(secondary))

	var merge categoryMerge
	merge.union = append(merge.union, primary...)

	for _, p := range primary {
		found := false
		for j, s := range secondary {
			if matched[j] {
				continue
			}
			if sim.Similar(p, s) {
				matched[j] = true
				merge.agreed++
				found = true
				break
			}
		}
		if !found {
			merge.disagreements = append(merge.disagreements, p)
		}
	}

	for j, s := range secondary {
		if !matched[j] {
			merge.union = append(merge.union, s)
			merge.disagreements = append(merge.disagreements, s)
		}
	}

	return merge
}

// mergeOutputs combines two successful engine outputs into the consensus
// result. Title and summary come verbatim from the primary; the item
// lists are pair-matched unions.
func mergeOutputs(primary, secondary *domain.EngineOutput, sim Similarity) *domain.ConsensusResult {
	insights := matchCategory(primary.Insights, secondary.Insights, sim)
	recs := matchCategory(primary.Recommendations, secondary.Recommendations, sim)

	denominator := maxInt(len(primary.Insights), len(secondary.Insights)) +
		maxInt(len(primary.Recommendations), len(secondary.Recommendations))

	ratio := 0.0
	if denominator > 0 {
		ratio = float64(insights.agreed+recs.agreed) / float64(denominator)
	}

	meanCompleteness := (completeness(primary) + completeness(secondary)) / 2
	confidence := clamp01(0.5*ratio + 0.5*meanCompleteness)

	return &domain.ConsensusResult{
		Title:           primary.Title,
		Summary:         primary.Summary,
		Insights:        insights.union,
		Recommendations: recs.union,
		AgreementRatio:  clamp01(ratio),
		ConfidenceScore: confidence,
		Disagreements: domain.Disagreements{
			Insights:        insights.disagreements,
			Recommendations: recs.disagreements,
		},
		Engines: []domain.EngineOutput{*primary, *secondary},
	}
}

// failoverResult builds the single-engine result used when exactly one
// engine failed. Agreement is zero by definition and confidence rests on
// the survivor's completeness alone.
func failoverResult(survivor *domain.EngineOutput) *domain.ConsensusResult {
	return &domain.ConsensusResult{
		Title:           survivor.Title,
		Summary:         survivor.Summary,
		Insights:        survivor.Insights,
		Recommendations: survivor.Recommendations,
		AgreementRatio:  0,
		ConfidenceScore: clamp01(0.5 * completeness(survivor)),
		FailoverUsed:    true,
		Engines:         []domain.EngineOutput{*survivor},
	}
}

// completeness scores how fully an output fills the report shape: title,
// summary, and up to three items per category each weigh a quarter.
func completeness(out *domain.EngineOutput) float64 {
	score := 0.0
	if out.Title != "" {
		score++
	}
	if out.Summary != "" {
		score++
	}
	score += math.Min(float64(len(out.Insights)), 3) / 3
	score += math.Min(float64(len(out.Recommendations)), 3) / 3
	return score / 4
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
