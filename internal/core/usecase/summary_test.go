package usecase

import (
	"reflect"
	"testing"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

func summaryImages() []domain.Image {
	return []domain.Image{
		{
			ID:     "a",
			Status: domain.ImageAnalyzed,
			Findings: domain.FindingList{
				{Type: domain.FindingCaries, Severity: domain.SeverityMild, ClinicalRecommendations: []string{"restauração"}},
				{Type: domain.FindingPeriodontal, Severity: domain.SeveritySevere},
			},
			RejectedFindings:        2,
			PrimaryDiagnosis:        "Cárie",
			ClinicalRecommendations: []string{"raspagem", "restauração"},
		},
		{
			ID:                      "b",
			Status:                  domain.ImageAnalyzed,
			Findings:                domain.FindingList{{Type: domain.FindingCaries, Severity: domain.SeverityModerate}},
			PrimaryDiagnosis:        "Periodontite",
			RequiresAdditionalExams: true,
		},
		{ID: "c", Status: domain.ImageFailed, Failure: &domain.ImageFailure{Kind: "quality_rejected"}},
		{ID: "d", Status: domain.ImageFailed, Failure: &domain.ImageFailure{Kind: "parse_error"}},
		{ID: "e", Status: domain.ImageFailed},
		{ID: "f", Status: domain.ImageCompleted, PrimaryDiagnosis: "Cárie"},
	}
}

func TestSummarizeExamCounts(t *testing.T) {
	summary := SummarizeExam(summaryImages())

	if summary.TotalImages != 6 || summary.AnalyzedImages != 3 || summary.FailedImages != 3 {
		t.Fatalf("unexpected image counts %+v", summary)
	}
	if summary.TotalFindings != 3 || summary.RejectedFindings != 2 {
		t.Fatalf("unexpected finding counts %+v", summary)
	}
	wantHistogram := map[domain.Severity]int{domain.SeverityMild: 1, domain.SeverityModerate: 1, domain.SeveritySevere: 1}
	if !reflect.DeepEqual(summary.SeverityHistogram, wantHistogram) {
		t.Fatalf("histogram = %v, want %v", summary.SeverityHistogram, wantHistogram)
	}
	if summary.FindingsByType[domain.FindingCaries] != 2 || summary.FindingsByType[domain.FindingPeriodontal] != 1 {
		t.Fatalf("unexpected findings by type %v", summary.FindingsByType)
	}
	if !reflect.DeepEqual(summary.PrimaryDiagnoses, []string{"Cárie", "Periodontite"}) {
		t.Fatalf("unexpected diagnoses %v", summary.PrimaryDiagnoses)
	}
	if !reflect.DeepEqual(summary.ClinicalRecommendations, []string{"raspagem", "restauração"}) {
		t.Fatalf("unexpected recommendations %v", summary.ClinicalRecommendations)
	}
	wantReasons := map[string]int{"quality_rejected": 1, "parse_error": 1, "unknown": 1}
	if !reflect.DeepEqual(summary.FailureReasons, wantReasons) {
		t.Fatalf("failure reasons = %v, want %v", summary.FailureReasons, wantReasons)
	}
	if !summary.RequiresAdditionalExams {
		t.Fatalf("requires_additional_exams must be OR-ed across images")
	}
}

func TestSummarizeExamIsOrderIndependent(t *testing.T) {
	images := summaryImages()
	want := SummarizeExam(images)

	// Every rotation and the reversal must give the same aggregate.
	for shift := 1; shift < len(images); shift++ {
		rotated := append(append([]domain.Image{}, images[shift:]...), images[:shift]...)
		if got := SummarizeExam(rotated); !reflect.DeepEqual(got, want) {
			t.Fatalf("rotation %d changed the summary:\n got %+v\nwant %+v", shift, got, want)
		}
	}
	reversed := make([]domain.Image, len(images))
	for i, img := range images {
		reversed[len(images)-1-i] = img
	}
	if got := SummarizeExam(reversed); !reflect.DeepEqual(got, want) {
		t.Fatalf("reversal changed the summary")
	}
}

func TestSummarizeExamEmpty(t *testing.T) {
	summary := SummarizeExam(nil)
	if summary.TotalImages != 0 || summary.PrimaryDiagnoses == nil || summary.ClinicalRecommendations == nil {
		t.Fatalf("empty summary must carry empty collections: %+v", summary)
	}
	if len(summary.SeverityHistogram) != 3 {
		t.Fatalf("histogram must always list every severity, got %v", summary.SeverityHistogram)
	}
}

func TestPrimaryDiagnosisFallsBackToMostSevereFinding(t *testing.T) {
	findings := []domain.Finding{
		{Type: domain.FindingCaries, Severity: domain.SeverityModerate, Confidence: 0.99, Description: "cárie"},
		{Type: domain.FindingPeriapical, Severity: domain.SeveritySevere, Confidence: 0.8, Description: "lesão apical"},
		{Type: domain.FindingFracture, Severity: domain.SeveritySevere, Confidence: 0.9},
	}
	if got := primaryDiagnosis(domain.ClinicalSummary{}, findings); got != "fracture" {
		t.Fatalf("expected most severe and confident finding, got %q", got)
	}
	if got := primaryDiagnosis(domain.ClinicalSummary{PrimaryDiagnosis: " Periodontite "}, findings); got != "Periodontite" {
		t.Fatalf("model diagnosis must win, got %q", got)
	}
	if got := primaryDiagnosis(domain.ClinicalSummary{}, nil); got != "" {
		t.Fatalf("expected empty diagnosis, got %q", got)
	}
}
