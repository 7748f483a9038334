package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/analysis"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/domain"
	"github.com/Josepassinato/dental-insight-api-sub000/internal/core/ports"
)

const DefaultMaxImageBytes int64 = 32 << 20

type ExamIntakeUseCase struct {
	exams    ports.ExamRepository
	images   ports.ImageRepository
	store    ports.ImageStore
	queue    ports.MessageQueue
	maxBytes int64
	now      func() time.Time
}

func NewExamIntakeUseCase(
	exams ports.ExamRepository,
	images ports.ImageRepository,
	store ports.ImageStore,
	queue ports.MessageQueue,
	maxImageBytes int64,
) *ExamIntakeUseCase {
	if maxImageBytes <= 0 {
		maxImageBytes = DefaultMaxImageBytes
	}
	return &ExamIntakeUseCase{
		exams:    exams,
		images:   images,
		store:    store,
		queue:    queue,
		maxBytes: maxImageBytes,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateExam stores every uploaded image, records the exam as pending and
// queues it for analysis. Every file is validated before anything is written;
// stored objects are removed again when a later write fails.
func (uc *ExamIntakeUseCase) CreateExam(ctx context.Context, examType string, files []ports.UploadFile) (*domain.Exam, error) {
	if len(files) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "create exam", errors.New("at least one image is required"))
	}

	now := uc.now()
	exam := &domain.Exam{
		ID:        uuid.NewString(),
		Type:      domain.ParseExamType(examType),
		Status:    domain.ExamPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	uploads := make([]upload, 0, len(files))
	for _, file := range files {
		u, err := uc.readUpload(file)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}

	images := make([]domain.Image, 0, len(uploads))
	for _, u := range uploads {
		img, err := uc.storeImage(ctx, exam, u, now)
		if err != nil {
			uc.discard(ctx, images)
			return nil, err
		}
		images = append(images, img)
	}

	if err := uc.exams.CreateWithImages(ctx, exam, images); err != nil {
		uc.discard(ctx, images)
		return nil, fmt.Errorf("create exam metadata: %w", err)
	}
	exam.Images = images

	if err := uc.queue.PublishAnalysisRequested(ctx, domain.AnalysisRequest{ExamID: exam.ID}); err != nil {
		return nil, fmt.Errorf("publish analysis request: %w", err)
	}
	return exam, nil
}

// upload is a validated file that has not been stored yet.
type upload struct {
	filename string
	mime     string
	data     []byte
}

func (uc *ExamIntakeUseCase) readUpload(file ports.UploadFile) (upload, error) {
	if file.Body == nil {
		return upload{}, domain.WrapError(domain.ErrInvalidInput, "read upload", fmt.Errorf("%s: empty body", file.Filename))
	}
	data, err := io.ReadAll(io.LimitReader(file.Body, uc.maxBytes+1))
	if err != nil {
		return upload{}, fmt.Errorf("read upload %s: %w", file.Filename, err)
	}
	if len(data) == 0 {
		return upload{}, domain.WrapError(domain.ErrInvalidInput, "read upload", fmt.Errorf("%s: empty file", file.Filename))
	}
	if int64(len(data)) > uc.maxBytes {
		return upload{}, domain.WrapError(domain.ErrInvalidInput, "read upload", fmt.Errorf("%s exceeds %d bytes", file.Filename, uc.maxBytes))
	}

	mime := analysis.DetectMIME(file.Filename, file.ContentType, data)
	if !analysis.IsImageMIME(mime) {
		return upload{}, domain.WrapError(domain.ErrInvalidInput, "read upload", fmt.Errorf("%s: unsupported content type %s", file.Filename, mime))
	}
	return upload{filename: file.Filename, mime: mime, data: data}, nil
}

func (uc *ExamIntakeUseCase) storeImage(ctx context.Context, exam *domain.Exam, u upload, now time.Time) (domain.Image, error) {
	id := uuid.NewString()
	key := fmt.Sprintf("%s/%s_%s", exam.ID, id, storageFilename(u.filename, u.mime))
	ref, err := uc.store.Put(ctx, key, u.data, u.mime)
	if err != nil {
		return domain.Image{}, domain.WrapError(domain.ErrStorage, "store upload", err)
	}

	return domain.Image{
		ID:               id,
		ExamID:           exam.ID,
		StorageRef:       ref,
		OriginalFilename: u.filename,
		MimeType:         u.mime,
		SizeBytes:        int64(len(u.data)),
		ImageType:        exam.Type,
		Status:           domain.ImageUploaded,
		Findings:         domain.FindingList{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// discard removes objects written for an exam that was never recorded.
func (uc *ExamIntakeUseCase) discard(ctx context.Context, images []domain.Image) {
	ctx = context.WithoutCancel(ctx)
	for _, img := range images {
		if err := uc.store.Delete(ctx, img.StorageRef); err != nil {
			slog.Warn("upload_cleanup_failed", "exam_id", img.ExamID, "ref", img.StorageRef, "error", err)
		}
	}
}

// RequestAnalysis queues an exam, or a single image retry, for the worker.
func (uc *ExamIntakeUseCase) RequestAnalysis(ctx context.Context, req domain.AnalysisRequest) error {
	if strings.TrimSpace(req.ExamID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "request analysis", errors.New("exam id is required"))
	}
	if _, err := uc.exams.GetByID(ctx, req.ExamID); err != nil {
		return err
	}
	if req.ImageID != "" {
		img, err := uc.images.GetByID(ctx, req.ImageID)
		if err != nil {
			return err
		}
		if img.ExamID != req.ExamID {
			return domain.WrapError(domain.ErrImageNotFound, "request analysis", fmt.Errorf("image %s does not belong to exam %s", req.ImageID, req.ExamID))
		}
		if img.Status.Succeeded() {
			return domain.WrapError(domain.ErrConflict, "request analysis", fmt.Errorf("image %s is already %s", req.ImageID, img.Status))
		}
	}
	if err := uc.queue.PublishAnalysisRequested(ctx, req); err != nil {
		return fmt.Errorf("publish analysis request: %w", err)
	}
	return nil
}

func storageFilename(name, mime string) string {
	base := sanitizeFilename(name)
	if filepath.Ext(base) == "" {
		base += analysis.ExtensionFor(mime)
	}
	return base
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "_" {
		return "image"
	}
	return base
}
