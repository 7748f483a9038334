package usecase

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

// SummarizeExam folds image outcomes into the exam aggregate. The result does
// not depend on image order.
func SummarizeExam(images []domain.Image) domain.ExamSummary {
	summary := domain.ExamSummary{
		TotalImages: len(images),
		SeverityHistogram: map[domain.Severity]int{
			domain.SeverityMild:     0,
			domain.SeverityModerate: 0,
			domain.SeveritySevere:   0,
		},
		FindingsByType:          map[domain.FindingType]int{},
		PrimaryDiagnoses:        []string{},
		ClinicalRecommendations: []string{},
		FailureReasons:          map[string]int{},
	}

	var diagnoses, recommendations []string
	for _, img := range images {
		switch {
		case img.Status.Succeeded():
			summary.AnalyzedImages++
			summary.TotalFindings += len(img.Findings)
			summary.RejectedFindings += img.RejectedFindings
			summary.RequiresAdditionalExams = summary.RequiresAdditionalExams || img.RequiresAdditionalExams
			for _, f := range img.Findings {
				summary.SeverityHistogram[f.Severity]++
				summary.FindingsByType[f.Type]++
				recommendations = append(recommendations, f.ClinicalRecommendations...)
			}
			if d := strings.TrimSpace(img.PrimaryDiagnosis); d != "" {
				diagnoses = append(diagnoses, d)
			}
			recommendations = append(recommendations, img.ClinicalRecommendations...)
		case img.Status == domain.ImageFailed:
			summary.FailedImages++
			summary.FailureReasons[failureReason(img.Failure)]++
		}
	}

	summary.PrimaryDiagnoses = sortedDistinct(diagnoses)
	summary.ClinicalRecommendations = sortedDistinct(recommendations)
	return summary
}

func failureReason(failure *domain.ImageFailure) string {
	if failure == nil || failure.Kind == "" {
		return "unknown"
	}
	return failure.Kind
}

func sortedDistinct(values []string) []string {
	trimmed := lo.FilterMap(values, func(v string, _ int) (string, bool) {
		v = strings.TrimSpace(v)
		return v, v != ""
	})
	out := lo.Uniq(trimmed)
	sort.Strings(out)
	if out == nil {
		return []string{}
	}
	return out
}

// primaryDiagnosis prefers the model's own summary and otherwise names the
// most severe, most confident accepted finding.
func primaryDiagnosis(summary domain.ClinicalSummary, findings []domain.Finding) string {
	if d := strings.TrimSpace(summary.PrimaryDiagnosis); d != "" {
		return d
	}
	if len(findings) == 0 {
		return ""
	}
	top := lo.MaxBy(findings, func(a, b domain.Finding) bool {
		if a.Severity.Rank() != b.Severity.Rank() {
			return a.Severity.Rank() > b.Severity.Rank()
		}
		return a.Confidence > b.Confidence
	})
	if top.Description != "" {
		return top.Description
	}
	return string(top.Type)
}

func imageConfidence(findings []domain.Finding) float64 {
	if len(findings) == 0 {
		return 0
	}
	return lo.SumBy(findings, func(f domain.Finding) float64 { return f.Confidence }) / float64(len(findings))
}

func collectRecommendations(summary domain.ClinicalSummary, findings []domain.Finding) []string {
	all := append([]string{}, summary.Recommendations...)
	for _, f := range findings {
		all = append(all, f.ClinicalRecommendations...)
	}
	return sortedDistinct(all)
}
