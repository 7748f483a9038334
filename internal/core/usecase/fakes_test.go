package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
)

// memoryStore implements the exam, image and finding repositories.
type memoryStore struct {
	mu       sync.Mutex
	exams    map[string]domain.Exam
	images   map[string]domain.Image
	order    []string
	statuses []domain.ExamStatus

	listErr     error
	createErr   error
	completions int
	clock       func() time.Time
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		exams:  map[string]domain.Exam{},
		images: map[string]domain.Image{},
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *memoryStore) seed(exam domain.Exam, images ...domain.Image) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exams[exam.ID] = exam
	for _, img := range images {
		if img.ExamID == "" {
			img.ExamID = exam.ID
		}
		if img.Status == "" {
			img.Status = domain.ImageUploaded
		}
		s.images[img.ID] = img
		s.order = append(s.order, img.ID)
	}
}

func (s *memoryStore) CreateWithImages(_ context.Context, exam *domain.Exam, images []domain.Image) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.seed(*exam, images...)
	return nil
}

func (s *memoryStore) GetByID(_ context.Context, id string) (*domain.Exam, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exam, ok := s.exams[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrExamNotFound, "get exam", fmt.Errorf("id=%s", id))
	}
	return &exam, nil
}

func (s *memoryStore) UpdateStatus(_ context.Context, id string, status domain.ExamStatus, errMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exam, ok := s.exams[id]
	if !ok {
		return domain.ErrExamNotFound
	}
	exam.Status = status
	exam.Error = errMessage
	s.exams[id] = exam
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *memoryStore) Complete(_ context.Context, id string, summary domain.ExamSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exam := s.exams[id]
	exam.Status = domain.ExamCompleted
	exam.Summary = &summary
	s.exams[id] = exam
	s.statuses = append(s.statuses, domain.ExamCompleted)
	s.completions++
	return nil
}

func (s *memoryStore) exam(id string) domain.Exam {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exams[id]
}

func (s *memoryStore) image(id string) domain.Image {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.images[id]
}

type imageRepo struct{ *memoryStore }

func (r imageRepo) GetByID(_ context.Context, id string) (*domain.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.images[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrImageNotFound, "get image", fmt.Errorf("id=%s", id))
	}
	return &img, nil
}

func (r imageRepo) ListByExam(_ context.Context, examID string) ([]domain.Image, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := []domain.Image{}
	for _, id := range r.order {
		if img := r.images[id]; img.ExamID == examID {
			out = append(out, img)
		}
	}
	return out, nil
}

func (r imageRepo) Transition(_ context.Context, id string, from, to domain.ImageStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.images[id]
	if !ok {
		return domain.ErrImageNotFound
	}
	if img.Status != from || !domain.CanTransition(from, to) {
		return domain.WrapError(domain.ErrConflict, "transition", fmt.Errorf("%s is %s", id, img.Status))
	}
	img.Status = to
	img.UpdatedAt = r.clock()
	if to == domain.ImageUploaded {
		img.Failure = nil
	}
	r.images[id] = img
	return nil
}

func (r imageRepo) Reclaim(_ context.Context, id string, staleBefore time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.images[id]
	if !ok {
		return domain.ErrImageNotFound
	}
	if img.Status != domain.ImageProcessing || !img.UpdatedAt.Before(staleBefore) {
		return domain.WrapError(domain.ErrConflict, "reclaim", fmt.Errorf("%s is %s since %s", id, img.Status, img.UpdatedAt))
	}
	img.UpdatedAt = r.clock()
	r.images[id] = img
	return nil
}

func (r imageRepo) SaveAnalysis(_ context.Context, a domain.ImageAnalysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	img := r.images[a.ImageID]
	if img.Status != domain.ImageProcessing {
		return domain.ErrConflict
	}
	img.Status = domain.ImageAnalyzed
	img.Provider = a.Provider
	img.RawResponse = a.RawResponse
	img.Findings = append(domain.FindingList{}, a.Findings...)
	img.Confidence = a.Confidence
	img.QualityScore = a.QualityScore
	img.RejectedFindings = a.RejectedFindings
	img.PrimaryDiagnosis = a.PrimaryDiagnosis
	img.ClinicalRecommendations = a.ClinicalRecommendations
	img.RequiresAdditionalExams = a.RequiresAdditionalExams
	img.OverlayRef = a.OverlayRef
	img.Failure = nil
	r.images[a.ImageID] = img
	return nil
}

func (r imageRepo) MarkFailed(_ context.Context, id string, failure domain.ImageFailure) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	img := r.images[id]
	if img.Status != domain.ImageProcessing {
		return domain.WrapError(domain.ErrConflict, "mark failed", fmt.Errorf("%s is %s", id, img.Status))
	}
	img.Status = domain.ImageFailed
	img.Failure = &failure
	r.images[id] = img
	return nil
}

type findingRepo struct{ *memoryStore }

func (r findingRepo) ListByImageIDs(_ context.Context, ids []string) ([]domain.Finding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Finding
	for _, id := range ids {
		out = append(out, r.images[id].Findings...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, errA := strconv.Atoi(out[i].ToothNumber)
		b, errB := strconv.Atoi(out[j].ToothNumber)
		if errA != nil {
			return false
		}
		if errB != nil {
			return true
		}
		return a < b
	})
	return out, nil
}

type objectStoreFake struct {
	mu      sync.Mutex
	objects map[string]domain.StoredObject
	getErr  map[string]error
	putErr  error
	deleted []string
}

func newObjectStore() *objectStoreFake {
	return &objectStoreFake{objects: map[string]domain.StoredObject{}, getErr: map[string]error{}}
}

func (s *objectStoreFake) Get(_ context.Context, ref string) (domain.StoredObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.getErr[ref]; err != nil {
		return domain.StoredObject{}, err
	}
	obj, ok := s.objects[ref]
	if !ok {
		return domain.StoredObject{}, errors.New("object not found")
	}
	return obj, nil
}

func (s *objectStoreFake) Put(_ context.Context, ref string, data []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return "", s.putErr
	}
	s.objects[ref] = domain.StoredObject{Data: append([]byte(nil), data...), ContentType: contentType}
	return ref, nil
}

func (s *objectStoreFake) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, ref)
	s.deleted = append(s.deleted, ref)
	return nil
}

func (s *objectStoreFake) has(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[ref]
	return ok
}

// providerFake answers by the first byte of the image so concurrent calls
// stay deterministic.
type providerFake struct {
	name      string
	responses map[byte]string
	err       error
	delay     time.Duration

	mu    sync.Mutex
	calls int
}

func (p *providerFake) Name() string { return p.name }

func (p *providerFake) Generate(ctx context.Context, req domain.ProviderRequest) (string, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if p.err != nil {
		return "", p.err
	}
	if len(req.Image) == 0 {
		return "", errors.New("no image")
	}
	return p.responses[req.Image[0]], nil
}

func (p *providerFake) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type rendererFake struct {
	mu           sync.Mutex
	instructions [][]domain.OverlayInstruction
	dimsErr      error
}

func (r *rendererFake) Dimensions([]byte) (domain.ImageDimensions, error) {
	if r.dimsErr != nil {
		return domain.ImageDimensions{}, r.dimsErr
	}
	return domain.ImageDimensions{Width: 1000, Height: 800}, nil
}

func (r *rendererFake) Render(_ context.Context, _ []byte, instructions []domain.OverlayInstruction) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instructions = append(r.instructions, instructions)
	return []byte("png"), nil
}

type queueFake struct {
	mu        sync.Mutex
	published []domain.AnalysisRequest
	err       error
}

func (q *queueFake) PublishAnalysisRequested(_ context.Context, req domain.AnalysisRequest) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, req)
	return nil
}

func (q *queueFake) SubscribeAnalysisRequested(context.Context, func(context.Context, domain.AnalysisRequest) error) error {
	return errors.New("not implemented")
}
