// Package importer turns external documents into catalog entries and
// renders the catalog back out.
package importer

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/prasenjit/mockforge/internal/models"
)

const maxSchemaDepth = 6

// openAPIParam matches {name} path parameters
var openAPIParam = regexp.MustCompile(`\{([^}/]+)\}`)

// ParseOpenAPI converts every operation of an OpenAPI 3 document (JSON or
// YAML) into a mock input. Responses come from the first documented success
// status, with bodies taken from examples or sketched from the schema.
func ParseOpenAPI(ctx context.Context, content []byte, basePath string) ([]*models.MockInput, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(content)
	if err != nil {
		return nil, models.NewValidationError("document", "failed to parse OpenAPI document: %v", err)
	}
	if err := doc.Validate(loader.Context); err != nil {
		return nil, models.NewValidationError("document", "invalid OpenAPI document: %v", err)
	}

	base := normalizeBasePath(basePath)
	if base == "" {
		base = serverBasePath(doc)
	}

	paths := make([]string, 0, doc.Paths.Len())
	for p := range doc.Paths.Map() {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var inputs []*models.MockInput
	for _, pathPattern := range paths {
		item := doc.Paths.Value(pathPattern)
		if item == nil {
			continue
		}

		ops := []struct {
			method string
			op     *openapi3.Operation
		}{
			{models.MethodGet, item.Get},
			{models.MethodPost, item.Post},
			{models.MethodPut, item.Put},
			{models.MethodPatch, item.Patch},
			{models.MethodDelete, item.Delete},
			{models.MethodOptions, item.Options},
		}

		for _, o := range ops {
			if o.op == nil {
				continue
			}
			inputs = append(inputs, operationInput(o.method, path.Join("/", base, ConvertPath(pathPattern)), o.op))
		}
	}

	return inputs, nil
}

// ConvertPath rewrites OpenAPI {param} segments to :param
func ConvertPath(p string) string {
	return openAPIParam.ReplaceAllString(p, ":$1")
}

func operationInput(method, fullPath string, op *openapi3.Operation) *models.MockInput {
	name := op.Summary
	if name == "" {
		name = op.OperationID
	}
	if name == "" {
		name = method + " " + fullPath
	}

	in := &models.MockInput{
		Name:           name,
		Method:         method,
		Path:           fullPath,
		ResponseStatus: 200,
	}

	status, resp := successResponse(op)
	if resp == nil {
		return in
	}
	in.ResponseStatus = status

	headers := make(map[string]string)
	for hname, h := range resp.Headers {
		if h != nil && h.Value != nil && h.Value.Example != nil {
			headers[hname] = fmt.Sprintf("%v", h.Value.Example)
		}
	}

	mediaTypes := make([]string, 0, len(resp.Content))
	for mt := range resp.Content {
		mediaTypes = append(mediaTypes, mt)
	}
	sort.Strings(mediaTypes)

	for _, mt := range mediaTypes {
		if !strings.Contains(mt, "json") {
			continue
		}
		headers["Content-Type"] = mt
		in.ResponseBody = mediaExample(resp.Content[mt])
		break
	}

	if len(headers) > 0 {
		in.ResponseHeaders = headers
	}
	return in
}

// successResponse picks the first documented 2xx response, then the default one
func successResponse(op *openapi3.Operation) (int, *openapi3.Response) {
	if op.Responses == nil {
		return 0, nil
	}
	for _, code := range []int{200, 201, 202, 204} {
		if ref := op.Responses.Status(code); ref != nil && ref.Value != nil {
			return code, ref.Value
		}
	}
	if ref := op.Responses.Default(); ref != nil && ref.Value != nil {
		return 200, ref.Value
	}
	return 0, nil
}

// mediaExample prefers an explicit example, then the first named example,
// then a sketch generated from the schema
func mediaExample(media *openapi3.MediaType) any {
	if media == nil {
		return nil
	}
	if media.Example != nil {
		return media.Example
	}

	names := make([]string, 0, len(media.Examples))
	for n := range media.Examples {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if ex := media.Examples[n]; ex != nil && ex.Value != nil && ex.Value.Value != nil {
			return ex.Value.Value
		}
	}

	if media.Schema != nil && media.Schema.Value != nil {
		return SchemaExample(media.Schema.Value, 0)
	}
	return nil
}

// SchemaExample sketches a value that fits schema
func SchemaExample(schema *openapi3.Schema, depth int) any {
	if schema.Example != nil {
		return schema.Example
	}
	if len(schema.Enum) > 0 {
		return schema.Enum[0]
	}
	if depth >= maxSchemaDepth {
		return nil
	}

	switch {
	case schema.Type.Is(openapi3.TypeObject) || len(schema.Properties) > 0:
		obj := make(map[string]any, len(schema.Properties))
		for name, prop := range schema.Properties {
			if prop != nil && prop.Value != nil {
				obj[name] = SchemaExample(prop.Value, depth+1)
			}
		}
		return obj
	case schema.Type.Is(openapi3.TypeArray):
		if schema.Items != nil && schema.Items.Value != nil {
			return []any{SchemaExample(schema.Items.Value, depth+1)}
		}
		return []any{}
	case schema.Type.Is(openapi3.TypeString):
		switch schema.Format {
		case "uuid":
			return "{{uuid}}"
		case "date-time":
			return "2024-01-01T00:00:00Z"
		}
		return "string"
	case schema.Type.Is(openapi3.TypeInteger):
		return 0
	case schema.Type.Is(openapi3.TypeNumber):
		return 0.0
	case schema.Type.Is(openapi3.TypeBoolean):
		return false
	default:
		return nil
	}
}

// serverBasePath takes the path of the first server URL, e.g. "/v1" from
// "https://api.example.com/v1"
func serverBasePath(doc *openapi3.T) string {
	if len(doc.Servers) == 0 || doc.Servers[0] == nil {
		return ""
	}
	u := doc.Servers[0].URL
	if i := strings.Index(u, "://"); i >= 0 {
		u = u[i+3:]
		if j := strings.Index(u, "/"); j >= 0 {
			u = u[j:]
		} else {
			u = ""
		}
	}
	if strings.Contains(u, "{") {
		return ""
	}
	return normalizeBasePath(u)
}

// normalizeBasePath ensures the base path is properly formatted
func normalizeBasePath(basePath string) string {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" || basePath == "/" {
		return ""
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	return strings.TrimSuffix(basePath, "/")
}
