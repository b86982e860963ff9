// Package apidoc holds the OpenAPI description of the HTTP surface. The
// document is embedded in the binary, validated at startup and served as JSON.
package apidoc

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/leslieo2/go-probe-toggle/internal/constants"
)

//go:embed openapi.yaml
var embedded []byte

type Document struct {
	doc  *openapi3.T
	json []byte
}

// Route is one documented operation.
type Route struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

// Load parses and validates the embedded document.
func Load() (*Document, error) {
	return LoadFromData(embedded)
}

func LoadFromData(data []byte) (*Document, error) {
	loader := openapi3.NewLoader()

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI document: %w", err)
	}

	if err := doc.Validate(loader.Context); err != nil {
		return nil, fmt.Errorf("OpenAPI document validation failed: %w", err)
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode OpenAPI document: %w", err)
	}

	return &Document{doc: doc, json: encoded}, nil
}

func (d *Document) Title() string {
	return d.doc.Info.Title
}

func (d *Document) Version() string {
	return d.doc.Info.Version
}

// Routes lists every documented operation ordered by path, then method.
func (d *Document) Routes() []Route {
	paths := d.doc.Paths.Map()
	routes := make([]Route, 0, len(paths)*2)

	for path, item := range paths {
		for method, op := range item.Operations() {
			routes = append(routes, Route{
				Method:      strings.ToUpper(method),
				Path:        path,
				Description: op.Summary,
			})
		}
	}

	sort.Slice(routes, func(i, j int) bool {
		if routes[i].Path != routes[j].Path {
			return routes[i].Path < routes[j].Path
		}
		return routes[i].Method < routes[j].Method
	})
	return routes
}

// ServeHTTP writes the document as JSON.
func (d *Document) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(d.json)
}
