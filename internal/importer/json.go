package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/prasenjit/mockforge/internal/catalog"
	"github.com/prasenjit/mockforge/internal/models"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Importer loads mocks into the catalog from JSON exports and OpenAPI documents
type Importer struct {
	catalog *catalog.Catalog
	logger  *zap.Logger
}

// New creates an importer
func New(cat *catalog.Catalog, logger *zap.Logger) *Importer {
	return &Importer{catalog: cat, logger: logger.Named("importer")}
}

// Export renders the whole catalog as a JSON array
func (i *Importer) Export(ctx context.Context) ([]byte, error) {
	mocks, err := i.catalog.All(ctx)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(mocks, "", "  ")
}

// DecodeJSON accepts either a bare array of mocks or an object with a
// "mocks" array, as produced by Export. Ids, counters and timestamps in the
// input are ignored.
func DecodeJSON(data []byte) ([]*models.MockInput, error) {
	if !gjson.ValidBytes(data) {
		return nil, models.NewValidationError("mocks", "body is not valid JSON")
	}

	doc := gjson.ParseBytes(data)
	if doc.IsObject() {
		doc = doc.Get("mocks")
	}
	if !doc.IsArray() {
		return nil, models.NewValidationError("mocks", "expected an array of mocks")
	}

	var inputs []*models.MockInput
	if err := json.Unmarshal([]byte(doc.Raw), &inputs); err != nil {
		var ve *models.ValidationError
		if errors.As(err, &ve) {
			return nil, ve
		}
		return nil, models.NewValidationError("mocks", "%v", err)
	}
	return inputs, nil
}

// ImportJSON creates every mock of a JSON export
func (i *Importer) ImportJSON(ctx context.Context, data []byte) ([]*models.MockDefinition, error) {
	inputs, err := DecodeJSON(data)
	if err != nil {
		return nil, err
	}
	return i.create(ctx, "json", inputs)
}

// ImportOpenAPI creates one mock per operation of an OpenAPI 3 document
func (i *Importer) ImportOpenAPI(ctx context.Context, content []byte, basePath string) ([]*models.MockDefinition, error) {
	inputs, err := ParseOpenAPI(ctx, content, basePath)
	if err != nil {
		return nil, err
	}
	return i.create(ctx, "openapi", inputs)
}

// create validates every input before storing any, so a bad entry rejects the whole batch
func (i *Importer) create(ctx context.Context, source string, inputs []*models.MockInput) ([]*models.MockDefinition, error) {
	for idx, in := range inputs {
		if in == nil {
			return nil, models.NewValidationError(fmt.Sprintf("mocks[%d]", idx), "must be an object")
		}
		if err := i.catalog.Validate(in); err != nil {
			var ve *models.ValidationError
			if errors.As(err, &ve) {
				return nil, &models.ValidationError{Field: fmt.Sprintf("mocks[%d].%s", idx, ve.Field), Message: ve.Message}
			}
			return nil, err
		}
	}

	created := make([]*models.MockDefinition, 0, len(inputs))
	for _, in := range inputs {
		def, err := i.catalog.Create(ctx, in)
		if err != nil {
			return created, err
		}
		created = append(created, def)
	}

	i.logger.Info("mocks imported", zap.String("source", source), zap.Int("count", len(created)))
	return created, nil
}
