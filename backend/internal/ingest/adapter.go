// Package ingest turns profile and company sync payloads from the primary
// profile store into graph mutations.
package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"peoplegraph/backend/internal/graph"
	apperrors "peoplegraph/backend/pkg/errors"
	"peoplegraph/backend/pkg/logger"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// UserPayload is the user sync message.
type UserPayload struct {
	ID        int64  `json:"id" validate:"required,gt=0"`
	Email     string `json:"email" validate:"omitempty,email,max=255"`
	FirstName string `json:"firstName" validate:"max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
	Headline  string `json:"headline" validate:"max=500"`
	Location  string `json:"location" validate:"max=200"`
	Industry  string `json:"industry" validate:"max=200"`
}

// CompanyPayload is the company sync message.
type CompanyPayload struct {
	ID          int64  `json:"id" validate:"required,gt=0"`
	Name        string `json:"name" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
	Industry    string `json:"industry" validate:"max=200"`
	Location    string `json:"location" validate:"max=200"`
}

// Mutator is the part of the mutation service the adapter drives.
type Mutator interface {
	UpsertUser(ctx context.Context, u graph.User) (graph.User, error)
	UpsertCompany(ctx context.Context, c graph.Company) (graph.Company, error)
}

// Adapter validates sync payloads and forwards them to a Mutator.
type Adapter struct {
	mutator Mutator
	logger  *zap.Logger
}

func NewAdapter(m Mutator) *Adapter {
	return &Adapter{mutator: m, logger: logger.Named("ingest")}
}

// SyncUser upserts the user described by p.
func (a *Adapter) SyncUser(ctx context.Context, p UserPayload) (graph.User, error) {
	if err := validatePayload(p); err != nil {
		return graph.User{}, err
	}
	u, err := a.mutator.UpsertUser(ctx, graph.User{
		ID:        p.ID,
		Email:     strings.TrimSpace(p.Email),
		FirstName: strings.TrimSpace(p.FirstName),
		LastName:  strings.TrimSpace(p.LastName),
		Headline:  strings.TrimSpace(p.Headline),
		Location:  strings.TrimSpace(p.Location),
		Industry:  strings.TrimSpace(p.Industry),
	})
	if err != nil {
		return graph.User{}, err
	}
	a.logger.Debug("User synced", zap.Int64("user_id", p.ID))
	return u, nil
}

// SyncCompany upserts the company described by p.
func (a *Adapter) SyncCompany(ctx context.Context, p CompanyPayload) (graph.Company, error) {
	if err := validatePayload(p); err != nil {
		return graph.Company{}, err
	}
	c, err := a.mutator.UpsertCompany(ctx, graph.Company{
		ID:          p.ID,
		Name:        strings.TrimSpace(p.Name),
		Description: strings.TrimSpace(p.Description),
		Industry:    strings.TrimSpace(p.Industry),
		Location:    strings.TrimSpace(p.Location),
	})
	if err != nil {
		return graph.Company{}, err
	}
	a.logger.Debug("Company synced", zap.Int64("company_id", p.ID))
	return c, nil
}

// validatePayload reports the first failing field as InvalidInput.
func validatePayload(p any) error {
	err := validatorInstance().Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason := fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		return apperrors.NewInvalidInput(lowerFirst(fe.Field()), "failed "+reason)
	}
	return apperrors.NewInvalidInput("payload", err.Error())
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	if s == "ID" {
		return "id"
	}
	return strings.ToLower(s[:1]) + s[1:]
}
