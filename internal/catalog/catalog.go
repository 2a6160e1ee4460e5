// Package catalog owns the set of mock definitions: creation, partial
// updates, cloning, deletion and paginated listing.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prasenjit/mockforge/internal/models"
	"github.com/prasenjit/mockforge/internal/storage"
	"github.com/prasenjit/mockforge/internal/template"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	cloneSuffix = " (Copy)"
)

// ListOptions selects one page of the catalog
type ListOptions struct {
	Page     int
	PageSize int
	Query    string // case-insensitive substring of name or path
}

// Pagination describes the returned page
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Page is one page of mocks, newest update first
type Page struct {
	Items      []*models.MockDefinition `json:"items"`
	Pagination Pagination               `json:"pagination"`
}

// Catalog manages mock definitions on top of a store
type Catalog struct {
	store    storage.Storage
	expander *template.Engine
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

// New creates a catalog
func New(store storage.Storage, expander *template.Engine, logger *zap.Logger) *Catalog {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Catalog{
		store:    store,
		expander: expander,
		validate: v,
		logger:   logger.Named("catalog"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create validates the input and stores a new mock
func (c *Catalog) Create(ctx context.Context, in *models.MockInput) (*models.MockDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := c.Validate(in); err != nil {
		return nil, err
	}

	now := c.now()
	def := &models.MockDefinition{
		ID:              uuid.New().String(),
		Name:            strings.TrimSpace(in.Name),
		Method:          in.Method,
		Path:            in.Path,
		ResponseStatus:  in.ResponseStatus,
		ResponseBody:    in.ResponseBody,
		ResponseHeaders: in.ResponseHeaders,
		Delay:           in.Delay,
		MatchConditions: in.MatchConditions,
		CreatedAt:       now,
		UpdatedAt:       now,
		CreatedByChatID: in.CreatedByChatID,
	}

	if err := c.store.CreateMock(def); err != nil {
		return nil, fmt.Errorf("failed to create mock: %w", err)
	}

	c.logger.Info("mock created",
		zap.String("id", def.ID),
		zap.String("method", def.Method),
		zap.String("path", def.Path),
		zap.String("provenance", def.Provenance()))
	return def, nil
}

// Get returns one mock
func (c *Catalog) Get(ctx context.Context, id string) (*models.MockDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.store.GetMock(id)
}

// Update merges a partial update into the stored mock. The merged result is
// validated before anything is written.
func (c *Catalog) Update(ctx context.Context, id string, upd *models.MockUpdate) (*models.MockDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	updated, err := c.store.UpdateMock(id, func(def *models.MockDefinition) error {
		in, err := merge(def, upd)
		if err != nil {
			return err
		}
		if err := c.check(in); err != nil {
			return err
		}

		def.Name = strings.TrimSpace(in.Name)
		def.Method = in.Method
		def.Path = in.Path
		def.ResponseStatus = in.ResponseStatus
		def.ResponseBody = in.ResponseBody
		def.ResponseHeaders = in.ResponseHeaders
		def.Delay = in.Delay
		def.MatchConditions = in.MatchConditions
		def.UpdatedAt = c.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("mock updated", zap.String("id", id))
	return updated, nil
}

// merge applies upd over the current definition and returns the candidate input
func merge(def *models.MockDefinition, upd *models.MockUpdate) (*models.MockInput, error) {
	in := &models.MockInput{
		Name:            def.Name,
		Method:          def.Method,
		Path:            def.Path,
		ResponseStatus:  def.ResponseStatus,
		ResponseBody:    def.ResponseBody,
		ResponseHeaders: def.ResponseHeaders,
		Delay:           def.Delay,
		MatchConditions: def.MatchConditions,
	}

	if upd.Name != nil {
		in.Name = *upd.Name
	}
	if upd.Method != nil {
		in.Method = strings.ToUpper(strings.TrimSpace(*upd.Method))
	}
	if upd.Path != nil {
		in.Path = normalizePath(*upd.Path)
	}
	if upd.ResponseStatus != nil {
		in.ResponseStatus = *upd.ResponseStatus
	}
	if upd.ResponseBody != nil {
		var body any
		if err := json.Unmarshal(*upd.ResponseBody, &body); err != nil {
			return nil, models.NewValidationError("responseBody", "must be valid JSON")
		}
		in.ResponseBody = body
	}
	if upd.Delay != nil {
		in.Delay = *upd.Delay
	}
	in.ResponseHeaders = upd.ResponseHeaders.Apply(in.ResponseHeaders)
	in.MatchConditions = upd.MatchConditions.Apply(in.MatchConditions).Normalize()

	return in, nil
}

// Delete removes one mock
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.store.DeleteMock(id); err != nil {
		return err
	}
	c.logger.Info("mock deleted", zap.String("id", id))
	return nil
}

// DeleteMany removes every listed mock that exists and returns how many went.
// Unknown ids are skipped.
func (c *Catalog) DeleteMany(ctx context.Context, ids []string) (int, error) {
	deleted := 0
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		err := c.store.DeleteMock(id)
		switch {
		case err == nil:
			deleted++
		case models.IsNotFound(err):
		default:
			return deleted, err
		}
	}

	c.logger.Info("mocks deleted", zap.Int("requested", len(ids)), zap.Int("deleted", deleted))
	return deleted, nil
}

// All returns the whole catalog, newest update first
func (c *Catalog) All(ctx context.Context) ([]*models.MockDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.store.ListMocks()
}

// List returns one page of the catalog
func (c *Catalog) List(ctx context.Context, opts ListOptions) (*Page, error) {
	mocks, err := c.All(ctx)
	if err != nil {
		return nil, err
	}

	if q := strings.ToLower(strings.TrimSpace(opts.Query)); q != "" {
		filtered := mocks[:0]
		for _, m := range mocks {
			if strings.Contains(strings.ToLower(m.Name), q) || strings.Contains(strings.ToLower(m.Path), q) {
				filtered = append(filtered, m)
			}
		}
		mocks = filtered
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	switch {
	case size <= 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}

	total := len(mocks)
	start := (page - 1) * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}

	return &Page{
		Items: mocks[start:end],
		Pagination: Pagination{
			Page:       page,
			PageSize:   size,
			Total:      total,
			TotalPages: (total + size - 1) / size,
		},
	}, nil
}

// Clone copies a mock under a new id. Usage counters and the assistant
// provenance are not carried over.
func (c *Catalog) Clone(ctx context.Context, id string) (*models.MockDefinition, error) {
	src, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := c.now()
	clone := src.Clone()
	clone.ID = uuid.New().String()
	clone.Name = src.Name + cloneSuffix
	clone.HitCount = 0
	clone.LastAccessed = nil
	clone.CreatedByChatID = nil
	clone.CreatedAt = now
	clone.UpdatedAt = now

	if err := c.store.CreateMock(clone); err != nil {
		return nil, fmt.Errorf("failed to clone mock: %w", err)
	}

	c.logger.Info("mock cloned", zap.String("source", id), zap.String("id", clone.ID))
	return clone, nil
}

// Validate normalizes the input in place and checks it without storing anything
func (c *Catalog) Validate(in *models.MockInput) error {
	in.Method = strings.ToUpper(strings.TrimSpace(in.Method))
	in.Path = normalizePath(in.Path)
	in.MatchConditions = in.MatchConditions.Normalize()
	return c.check(in)
}

// check runs struct validation and token argument checks
func (c *Catalog) check(in *models.MockInput) error {
	if err := c.validate.Struct(in); err != nil {
		return translate(err)
	}
	if c.expander != nil {
		if err := c.expander.Validate(in.ResponseBody); err != nil {
			return err
		}
	}
	return nil
}

// translate turns the first validator failure into a ValidationError on the JSON field
func translate(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &models.ValidationError{Message: err.Error()}
	}

	fe := verrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return models.NewValidationError(field, "is required")
	case "oneof":
		return models.NewValidationError(field, "must be one of %s", fe.Param())
	case "min", "max":
		if field == "responseStatus" {
			return models.NewValidationError(field, "must be between 100 and 599")
		}
		if field == "delay" {
			return models.NewValidationError(field, "must not be negative")
		}
		return models.NewValidationError(field, "must be %s %s", fe.Tag(), fe.Param())
	default:
		return models.NewValidationError(field, "failed %s check", fe.Tag())
	}
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
