package usecase

import (
	"context"
	"testing"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

func TestListFindingsOrdersByTooth(t *testing.T) {
	store := newMemoryStore()
	store.seed(domain.Exam{ID: "exam-1", Status: domain.ExamCompleted},
		domain.Image{ID: "img-1", Status: domain.ImageAnalyzed, Findings: domain.FindingList{
			{ID: "f-36", ToothNumber: "36"},
			{ID: "f-none"},
		}},
		domain.Image{ID: "img-2", Status: domain.ImageAnalyzed, Findings: domain.FindingList{
			{ID: "f-8", ToothNumber: "8"},
			{ID: "f-16", ToothNumber: "16"},
		}},
	)
	store.seed(domain.Exam{ID: "exam-2"}, domain.Image{ID: "img-x", Findings: domain.FindingList{{ID: "f-foreign", ToothNumber: "11"}}})

	uc := NewExamQueryUseCase(store, imageRepo{store}, findingRepo{store})
	findings, err := uc.ListFindings(context.Background(), "exam-1")
	if err != nil {
		t.Fatalf("ListFindings() error = %v", err)
	}

	var ids []string
	for _, f := range findings {
		ids = append(ids, f.ID)
	}
	want := []string{"f-8", "f-16", "f-36", "f-none"}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v, want %v", ids, want)
		}
	}
}

func TestListFindingsEmptyExam(t *testing.T) {
	store := newMemoryStore()
	store.seed(domain.Exam{ID: "exam-1"})
	uc := NewExamQueryUseCase(store, imageRepo{store}, findingRepo{store})

	findings, err := uc.ListFindings(context.Background(), "exam-1")
	if err != nil {
		t.Fatalf("ListFindings() error = %v", err)
	}
	if findings == nil || len(findings) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", findings)
	}

	if _, err := uc.ListFindings(context.Background(), "missing"); !domain.IsKind(err, domain.ErrExamNotFound) {
		t.Fatalf("expected exam not found, got %v", err)
	}
}

func TestGetExamAttachesImages(t *testing.T) {
	store := newMemoryStore()
	store.seed(domain.Exam{ID: "exam-1", Status: domain.ExamProcessing}, domain.Image{ID: "a"}, domain.Image{ID: "b"})
	uc := NewExamQueryUseCase(store, imageRepo{store}, findingRepo{store})

	exam, err := uc.GetExam(context.Background(), "exam-1")
	if err != nil {
		t.Fatalf("GetExam() error = %v", err)
	}
	if len(exam.Images) != 2 || exam.Images[0].ID != "a" {
		t.Fatalf("unexpected images %+v", exam.Images)
	}
}
