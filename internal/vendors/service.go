package vendors

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/shopsphere-backend/pkg/db"
	"github.com/angelmondragon/shopsphere-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopsphere-backend/pkg/errors"
	"github.com/angelmondragon/shopsphere-backend/pkg/pagination"
	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

var validate = validator.New()

// Service manages the vendor directory.
type Service interface {
	Register(ctx context.Context, input RegisterInput) (*models.Vendor, error)
	Get(ctx context.Context, id int64) (*models.Vendor, error)
	Exists(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context, params pagination.Params) (*ListResult, error)
}

// RegisterInput carries vendor contact details.
type RegisterInput struct {
	Name    string
	Email   string
	Phone   string
	Address string
}

// ListResult is a page of vendors ordered by id.
type ListResult struct {
	Vendors    []models.Vendor `json:"vendors"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type service struct {
	repo Repository
}

// NewService wires the vendor directory.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("vendor repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Register(ctx context.Context, input RegisterInput) (*models.Vendor, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor name is required")
	}
	vendor := &models.Vendor{Name: name}
	if email := strings.TrimSpace(input.Email); email != "" {
		if err := validate.Var(email, "email"); err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "vendor email is invalid").
				WithDetails(map[string]any{"email": email})
		}
		vendor.Email = &email
	}
	if phone := strings.TrimSpace(input.Phone); phone != "" {
		vendor.Phone = &phone
	}
	if address := strings.TrimSpace(input.Address); address != "" {
		vendor.Address = &address
	}

	if err := s.repo.Create(ctx, vendor); err != nil {
		return nil, db.Classify(err, "create vendor")
	}
	return vendor, nil
}

func (s *service) Get(ctx context.Context, id int64) (*models.Vendor, error) {
	vendor, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
	}
	if err != nil {
		return nil, db.Classify(err, "load vendor")
	}
	return vendor, nil
}

func (s *service) Exists(ctx context.Context, id int64) (bool, error) {
	if id <= 0 {
		return false, nil
	}
	ok, err := s.repo.Exists(ctx, id)
	if err != nil {
		return false, db.Classify(err, "check vendor")
	}
	return ok, nil
}

func (s *service) List(ctx context.Context, params pagination.Params) (*ListResult, error) {
	after, err := pagination.ParseSequenceCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.List(ctx, after, limit+1)
	if err != nil {
		return nil, db.Classify(err, "list vendors")
	}

	result := &ListResult{Vendors: rows}
	if len(rows) > limit {
		result.Vendors = rows[:limit]
		result.NextCursor = pagination.EncodeSequenceCursor(result.Vendors[limit-1].ID)
	}
	return result, nil
}
