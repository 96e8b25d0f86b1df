// Package contract holds the OpenAPI description of the backend surface the
// console consumes and validates responses against it.
package contract

import (
	"context"
	_ "embed"
	"fmt"
	"mime"
	"net/http"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"
)

//go:embed openapi.yaml
var specData []byte

// Validator checks backend responses against the embedded contract
type Validator struct {
	doc    *openapi3.T
	router routers.Router
}

// Operation is one method + path template pair in the contract
type Operation struct {
	ID     string
	Method string
	Path   string
}

// Load parses and validates the embedded contract
func Load() (*Validator, error) {
	loader := openapi3.NewLoader()

	doc, err := loader.LoadFromData(specData)
	if err != nil {
		return nil, fmt.Errorf("failed to load API contract: %w", err)
	}

	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("invalid API contract: %w", err)
	}

	// Literal paths are tried before templated ones, so /security/events/stats/
	// never resolves to /security/events/{id}/
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to route API contract: %w", err)
	}

	return &Validator{doc: doc, router: router}, nil
}

// MustLoad is Load for package-level initialisation in tests and main
func MustLoad() *Validator {
	v, err := Load()
	if err != nil {
		panic(err)
	}
	return v
}

// Operations lists every operation in the contract, sorted by path then method
func (v *Validator) Operations() []Operation {
	var ops []Operation
	for path, item := range v.doc.Paths.Map() {
		for method, op := range item.Operations() {
			ops = append(ops, Operation{ID: op.OperationID, Method: method, Path: path})
		}
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].Path != ops[j].Path {
			return ops[i].Path < ops[j].Path
		}
		return ops[i].Method < ops[j].Method
	})
	return ops
}

// Match returns the path template that method and requestPath resolve to, or
// "" when the contract has no such operation
func (v *Validator) Match(method, requestPath string) string {
	route, _, _, err := v.find(method, requestPath)
	if err != nil {
		return ""
	}
	return route.Path
}

func (v *Validator) find(method, requestPath string) (*routers.Route, map[string]string, *http.Request, error) {
	req, err := http.NewRequest(strings.ToUpper(method), normalizePath(requestPath), nil)
	if err != nil {
		return nil, nil, nil, err
	}
	route, params, err := v.router.FindRoute(req)
	if err != nil {
		return nil, nil, nil, err
	}
	return route, params, req, nil
}

// ValidateResponse checks a 2xx response against the contract: the operation
// and status must be declared, and a JSON body must match its schema.
// Non-JSON bodies and non-2xx statuses are not checked.
func (v *Validator) ValidateResponse(method, requestPath string, status int, contentType string, body []byte) error {
	if status < 200 || status >= 300 {
		return nil
	}

	route, params, req, err := v.find(method, requestPath)
	if err != nil {
		return fmt.Errorf("%s %s is not part of the API contract: %w", method, requestPath, err)
	}

	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: params,
			Route:      route,
		},
		Status: status,
		Header: http.Header{"Content-Type": []string{contentType}},
		Options: &openapi3filter.Options{
			IncludeResponseStatus: true,
			ExcludeResponseBody:   !isJSON(contentType) || !declaresJSON(route.Operation, status),
		},
	}
	input.SetBodyBytes(body)

	if err := openapi3filter.ValidateResponse(context.Background(), input); err != nil {
		return fmt.Errorf("%s %s: response does not match contract: %w", method, route.Path, err)
	}
	return nil
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}

func declaresJSON(op *openapi3.Operation, status int) bool {
	ref := op.Responses.Status(status)
	if ref == nil {
		ref = op.Responses.Default()
	}
	return ref != nil && ref.Value != nil && ref.Value.Content.Get("application/json") != nil
}

// normalizePath drops the query string and ensures leading and trailing slashes
func normalizePath(path string) string {
	if idx := strings.IndexByte(path, '?'); idx != -1 {
		path = path[:idx]
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return path
}
