package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/pixelmint/pixelmint-backend/internal/credits"
	"github.com/pixelmint/pixelmint-backend/internal/providers"
	"github.com/pixelmint/pixelmint-backend/pkg/config"
	"github.com/pixelmint/pixelmint-backend/pkg/db/models"
	"github.com/pixelmint/pixelmint-backend/pkg/enums"
	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
	"github.com/pixelmint/pixelmint-backend/pkg/logger"
	"github.com/pixelmint/pixelmint-backend/pkg/metrics"
)

const timedOutMessage = "Request timed out"

// ImageInput is a validated image generation request.
type ImageInput struct {
	UserID          uuid.UUID
	ModelKey        string
	Prompt          string
	AspectRatio     string
	ImageSize       enums.ImageSize
	ReferenceImages []providers.ReferenceImage
}

// ImageOutput carries inline image data, a hosted URL, or both.
type ImageOutput struct {
	JobID       uuid.UUID `json:"jobId"`
	ModelKey    string    `json:"model"`
	CostCredits int64     `json:"costCredits"`
	ImageData   string    `json:"imageData,omitempty"`
	ImageURL    string    `json:"imageUrl,omitempty"`
}

type TextInput struct {
	UserID   uuid.UUID
	ModelKey string
	Prompt   string
}

type TextOutput struct {
	RequestID   uuid.UUID `json:"requestId"`
	ModelKey    string    `json:"model"`
	CostCredits int64     `json:"costCredits"`
	Text        string    `json:"text"`
}

// Service drives billed generation calls: price, charge, persist the job,
// call the provider, then settle as succeeded or failed-and-refunded.
type Service interface {
	GenerateImage(ctx context.Context, in ImageInput) (*ImageOutput, error)
	GenerateText(ctx context.Context, in TextInput) (*TextOutput, error)
	GetJob(ctx context.Context, userID, jobID uuid.UUID) (*models.GenerationJob, error)
	ListModels(ctx context.Context) ([]ModelListing, error)
}

type pricer interface {
	Cost(ctx context.Context, modelKey string) (int64, error)
	ListEnabled(ctx context.Context) ([]models.ModelPricing, error)
}

type resolver interface {
	Resolve(modelKey string) (providers.Adapter, error)
	ResolveText(modelKey string) (providers.TextAdapter, error)
}

// Storage receives generated image bytes.
type Storage interface {
	Upload(ctx context.Context, object, contentType string, data []byte) error
	PublicURL(object string) string
}

// Timeouts bounds each upstream call by requested resolution.
type Timeouts struct {
	Size1K time.Duration
	Size2K time.Duration
	Size4K time.Duration
	Text   time.Duration
}

func TimeoutsFrom(cfg config.GenerationConfig) Timeouts {
	return Timeouts{
		Size1K: cfg.Timeout1K,
		Size2K: cfg.Timeout2K,
		Size4K: cfg.Timeout4K,
		Text:   cfg.TextTimeout,
	}
}

// ForSize returns the deadline for size; unknown sizes use the 1K budget.
func (t Timeouts) ForSize(size enums.ImageSize) time.Duration {
	switch size {
	case enums.ImageSize2K:
		return orDefault(t.Size2K, 300*time.Second)
	case enums.ImageSize4K:
		return orDefault(t.Size4K, 360*time.Second)
	default:
		return orDefault(t.Size1K, 180*time.Second)
	}
}

func (t Timeouts) ForText() time.Duration {
	return orDefault(t.Text, 60*time.Second)
}

// Longest is the largest deadline any single call may run for. Graceful
// shutdown waits at least this long so in-flight jobs can settle.
func (t Timeouts) Longest() time.Duration {
	longest := t.ForText()
	for _, size := range []enums.ImageSize{enums.ImageSize1K, enums.ImageSize2K, enums.ImageSize4K} {
		longest = max(longest, t.ForSize(size))
	}
	return longest
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

type service struct {
	jobs     Repository
	prices   pricer
	registry resolver
	ledger   credits.Service
	store    Storage
	timeouts Timeouts
	metrics  *metrics.GenerationMetrics
	logg     *logger.Logger
}

// NewService wires the orchestrator. store may be nil, in which case images
// are returned to the caller without being persisted.
func NewService(
	jobs Repository,
	prices pricer,
	registry resolver,
	ledger credits.Service,
	store Storage,
	timeouts Timeouts,
	m *metrics.GenerationMetrics,
	logg *logger.Logger,
) (Service, error) {
	if jobs == nil {
		return nil, fmt.Errorf("generation job repository required")
	}
	if prices == nil {
		return nil, fmt.Errorf("pricing repository required")
	}
	if registry == nil {
		return nil, fmt.Errorf("provider registry required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("credits service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		jobs:     jobs,
		prices:   prices,
		registry: registry,
		ledger:   ledger,
		store:    store,
		timeouts: timeouts,
		metrics:  m,
		logg:     logg,
	}, nil
}

func (s *service) GenerateImage(ctx context.Context, in ImageInput) (*ImageOutput, error) {
	if in.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id is required")
	}
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "prompt is required")
	}
	size := in.ImageSize
	if size == "" {
		size = enums.ImageSize1K
	}
	if !size.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid image size").
			WithDetails(map[string]any{"imageSize": string(size)})
	}

	cost, err := s.prices.Cost(ctx, in.ModelKey)
	if err != nil {
		return nil, err
	}
	adapter, err := s.registry.Resolve(in.ModelKey)
	if err != nil {
		return nil, err
	}

	jobID := uuid.New()
	ctx = s.logg.WithJobID(ctx, jobID.String())
	ctx = s.logg.WithUserID(ctx, in.UserID.String())
	ctx = s.logg.WithModelKey(ctx, in.ModelKey)

	charge := credits.Movement{
		UserID: in.UserID,
		Amount: cost,
		Reason: enums.LedgerReasonGenerationCharge,
		RefID:  jobID.String(),
	}
	refund := charge
	refund.Reason = enums.LedgerReasonGenerationRefund

	charged, err := s.ledger.Charge(ctx, charge)
	if err != nil {
		return nil, err
	}
	if !charged {
		return nil, insufficientCredits(cost)
	}

	// The job row and the charge are separate statements; a failed insert is
	// compensated here rather than by a spanning transaction.
	settleCtx := context.WithoutCancel(ctx)
	job := &models.GenerationJob{
		ID:          jobID,
		UserID:      in.UserID,
		ModelKey:    in.ModelKey,
		CostCredits: cost,
		Prompt:      prompt,
		AspectRatio: in.AspectRatio,
		ImageSize:   size,
		Status:      enums.JobStatusRunning,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		if refundErr := s.refund(settleCtx, refund); refundErr != nil {
			s.logg.Error(settleCtx, "generation.job.refund_failed", refundErr)
		}
		s.logg.Error(settleCtx, "generation.job.persist_failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist generation job")
	}
	s.logg.Info(ctx, "generation.job.started")

	callCtx, cancel := context.WithTimeout(ctx, s.timeouts.ForSize(size))
	started := time.Now()
	result, genErr := adapter.Generate(callCtx, providers.Request{
		Prompt:          prompt,
		ReferenceImages: in.ReferenceImages,
		AspectRatio:     in.AspectRatio,
		ImageSize:       size,
	})
	timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded)
	cancel()
	elapsed := time.Since(started)

	if genErr == nil && result.Empty() {
		genErr = &providers.Error{Message: adapter.Name() + " returned no image", Status: http.StatusBadGateway}
	}
	if genErr != nil {
		stored, surfaced := classifyFailure(genErr, timedOut)
		if settleErr := s.fail(settleCtx, jobID, stored, refund); settleErr != nil {
			s.logg.Error(settleCtx, "generation.job.settle_failed", settleErr)
		}
		s.metrics.ObserveJob(in.ModelKey, enums.JobStatusFailed.String(), elapsed)
		s.logg.Warn(s.logg.WithField(settleCtx, "error", stored), "generation.job.failed")
		return nil, surfaced
	}

	s.markSucceeded(settleCtx, jobID)
	s.metrics.ObserveJob(in.ModelKey, enums.JobStatusSucceeded.String(), elapsed)
	s.logg.Info(settleCtx, "generation.job.succeeded")

	out := &ImageOutput{
		JobID:       jobID,
		ModelKey:    in.ModelKey,
		CostCredits: cost,
		ImageURL:    result.URL,
	}
	if len(result.Data) > 0 {
		mimeType := result.MimeType
		if mimeType == "" {
			mimeType = http.DetectContentType(result.Data)
		}
		out.ImageData = providers.ReferenceImage{Data: result.Data, MimeType: mimeType}.DataURL()
		if url := s.persist(settleCtx, in.UserID, jobID, result); url != "" && out.ImageURL == "" {
			out.ImageURL = url
		}
	}
	return out, nil
}

// markSucceeded settles a delivered job, retrying once. A row still running
// after the retry keeps its charge since the caller already has the image.
func (s *service) markSucceeded(ctx context.Context, jobID uuid.UUID) {
	ok, err := s.jobs.MarkSucceeded(ctx, jobID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "generation.job.mark_succeeded_retry")
		ok, err = s.jobs.MarkSucceeded(ctx, jobID)
	}
	switch {
	case err != nil:
		s.logg.Error(ctx, "generation.job.mark_succeeded_failed", err)
	case !ok:
		s.logg.Warn(ctx, "generation.job.already_settled")
	}
}

// fail marks the job failed and restores the charge. Both steps run even when
// the first one errors.
func (s *service) fail(ctx context.Context, jobID uuid.UUID, message string, refund credits.Movement) error {
	var errs error
	if _, err := s.jobs.MarkFailed(ctx, jobID, message); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("mark job failed: %w", err))
	}
	if err := s.refund(ctx, refund); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

func (s *service) refund(ctx context.Context, m credits.Movement) error {
	applied, err := s.ledger.Refund(ctx, m)
	if err != nil {
		return fmt.Errorf("refund %s: %w", m.RefID, err)
	}
	if applied {
		s.metrics.IncRefund(m.Reason.String())
	}
	return nil
}

// persist uploads inline bytes to images/{userId}/{jobId}.{ext}. Failures are
// logged only; the caller already has the image.
func (s *service) persist(ctx context.Context, userID, jobID uuid.UUID, result *providers.ImageResult) string {
	if s.store == nil {
		return ""
	}
	key := ObjectKey(userID, jobID, result.Extension())
	contentType := result.MimeType
	if contentType == "" {
		contentType = http.DetectContentType(result.Data)
	}
	if err := s.store.Upload(ctx, key, contentType, result.Data); err != nil {
		s.metrics.IncUpload("error")
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "generation.job.upload_failed")
		return ""
	}
	s.metrics.IncUpload("ok")
	if err := s.jobs.SetOutputKey(ctx, jobID, key); err != nil {
		s.logg.Error(ctx, "generation.job.output_key_failed", err)
	}
	return s.store.PublicURL(key)
}

// ObjectKey is the storage key of a job's output image.
func ObjectKey(userID, jobID uuid.UUID, ext string) string {
	return fmt.Sprintf("images/%s/%s.%s", userID, jobID, ext)
}

func (s *service) GenerateText(ctx context.Context, in TextInput) (*TextOutput, error) {
	if in.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id is required")
	}
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "prompt is required")
	}

	cost, err := s.prices.Cost(ctx, in.ModelKey)
	if err != nil {
		return nil, err
	}
	adapter, err := s.registry.ResolveText(in.ModelKey)
	if err != nil {
		return nil, err
	}

	requestID := uuid.New()
	ctx = s.logg.WithField(ctx, "request_ref", requestID.String())
	ctx = s.logg.WithUserID(ctx, in.UserID.String())
	ctx = s.logg.WithModelKey(ctx, in.ModelKey)

	charge := credits.Movement{
		UserID: in.UserID,
		Amount: cost,
		Reason: enums.LedgerReasonTextGenerationCharge,
		RefID:  requestID.String(),
	}
	refund := charge
	refund.Reason = enums.LedgerReasonTextGenerationRefund

	charged, err := s.ledger.Charge(ctx, charge)
	if err != nil {
		return nil, err
	}
	if !charged {
		return nil, insufficientCredits(cost)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeouts.ForText())
	text, genErr := adapter.GenerateText(callCtx, prompt)
	timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded)
	cancel()

	if genErr == nil && strings.TrimSpace(text) == "" {
		genErr = &providers.Error{Message: adapter.Name() + " returned no text", Status: http.StatusBadGateway}
	}
	if genErr != nil {
		stored, surfaced := classifyFailure(genErr, timedOut)
		settleCtx := context.WithoutCancel(ctx)
		if err := s.refund(settleCtx, refund); err != nil {
			s.logg.Error(settleCtx, "generation.text.refund_failed", err)
		}
		s.logg.Warn(s.logg.WithField(settleCtx, "error", stored), "generation.text.failed")
		return nil, surfaced
	}

	return &TextOutput{
		RequestID:   requestID,
		ModelKey:    in.ModelKey,
		CostCredits: cost,
		Text:        text,
	}, nil
}

func (s *service) GetJob(ctx context.Context, userID, jobID uuid.UUID) (*models.GenerationJob, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id is required")
	}
	job, err := s.jobs.FindForUser(ctx, jobID, userID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "generation job not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load generation job")
	}
	return job, nil
}

// classifyFailure returns the string stored on the job and the error surfaced
// to the caller.
func classifyFailure(err error, timedOut bool) (string, error) {
	if timedOut || errors.Is(err, context.DeadlineExceeded) {
		return timedOutMessage, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, timedOutMessage).
			WithHTTPStatus(http.StatusInternalServerError)
	}
	var upstream *providers.Error
	if errors.As(err, &upstream) {
		return upstream.Error(), pkgerrors.Wrap(pkgerrors.CodeUpstream, err, upstream.Message).
			WithHTTPStatus(upstream.Status)
	}
	return err.Error(), pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "generation failed")
}

func insufficientCredits(required int64) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientCredits, "insufficient credits").
		WithDetails(map[string]any{"required": required})
}
