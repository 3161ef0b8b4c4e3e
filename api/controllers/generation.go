package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pixelmint/pixelmint-backend/api/responses"
	"github.com/pixelmint/pixelmint-backend/api/validators"
	"github.com/pixelmint/pixelmint-backend/internal/generation"
	"github.com/pixelmint/pixelmint-backend/internal/providers"
	"github.com/pixelmint/pixelmint-backend/pkg/db/models"
	"github.com/pixelmint/pixelmint-backend/pkg/enums"
	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
	"github.com/pixelmint/pixelmint-backend/pkg/logger"
)

const maxPromptLength = 4000

type imageGenerator interface {
	GenerateImage(ctx context.Context, in generation.ImageInput) (*generation.ImageOutput, error)
}

type textGenerator interface {
	GenerateText(ctx context.Context, in generation.TextInput) (*generation.TextOutput, error)
}

type jobReader interface {
	GetJob(ctx context.Context, userID, jobID uuid.UUID) (*models.GenerationJob, error)
}

type modelLister interface {
	ListModels(ctx context.Context) ([]generation.ModelListing, error)
}

type generateImageRequest struct {
	Model           string   `json:"model" validate:"required,model_key"`
	Prompt          string   `json:"prompt" validate:"required,max=4000"`
	AspectRatio     string   `json:"aspectRatio" validate:"omitempty,aspect_ratio"`
	ImageSize       string   `json:"imageSize" validate:"omitempty,oneof=1K 2K 4K"`
	ReferenceImages []string `json:"referenceImages" validate:"max=4,dive,required"`
}

type generateTextRequest struct {
	Model  string `json:"model" validate:"required,model_key"`
	Prompt string `json:"prompt" validate:"required,max=4000"`
}

type jobResponse struct {
	ID          uuid.UUID  `json:"id"`
	Model       string     `json:"model"`
	Status      string     `json:"status"`
	CostCredits int64      `json:"costCredits"`
	Prompt      string     `json:"prompt"`
	AspectRatio string     `json:"aspectRatio,omitempty"`
	ImageSize   string     `json:"imageSize"`
	Error       *string    `json:"error,omitempty"`
	OutputKey   *string    `json:"outputKey,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// GenerateImage charges the caller, runs the selected model and returns the
// image inline or as a hosted URL.
func GenerateImage(svc imageGenerator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "generation service unavailable"))
			return
		}

		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req generateImageRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		refs := make([]providers.ReferenceImage, 0, len(req.ReferenceImages))
		for i, raw := range req.ReferenceImages {
			ref, err := providers.ParseReferenceImage(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reference image").
					WithDetails(map[string]any{"index": i}))
				return
			}
			refs = append(refs, ref)
		}

		out, err := svc.GenerateImage(r.Context(), generation.ImageInput{
			UserID:          userID,
			ModelKey:        validators.NormalizeCode(req.Model),
			Prompt:          validators.NormalizePrompt(req.Prompt, maxPromptLength),
			AspectRatio:     strings.TrimSpace(req.AspectRatio),
			ImageSize:       enums.ImageSize(req.ImageSize),
			ReferenceImages: refs,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

// GenerateText bills one text completion against the caller's balance.
func GenerateText(svc textGenerator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "generation service unavailable"))
			return
		}

		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req generateTextRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.GenerateText(r.Context(), generation.TextInput{
			UserID:   userID,
			ModelKey: validators.NormalizeCode(req.Model),
			Prompt:   validators.NormalizePrompt(req.Prompt, maxPromptLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, out)
	}
}

// GetImageJob returns one of the caller's generation jobs.
func GetImageJob(svc jobReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "generation service unavailable"))
			return
		}

		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		jobID, err := validators.ParseUUIDParam(r, "jobId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		job, err := svc.GetJob(r.Context(), userID, jobID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, jobResponse{
			ID:          job.ID,
			Model:       job.ModelKey,
			Status:      string(job.Status),
			CostCredits: job.CostCredits,
			Prompt:      job.Prompt,
			AspectRatio: job.AspectRatio,
			ImageSize:   string(job.ImageSize),
			Error:       job.Error,
			OutputKey:   job.OutputKey,
			CreatedAt:   job.CreatedAt,
			CompletedAt: job.CompletedAt,
		})
	}
}

// ListModels returns every priced model with its credit cost and whether a
// provider is configured for it.
func ListModels(svc modelLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "generation service unavailable"))
			return
		}

		listings, err := svc.ListModels(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"models": listings})
	}
}
