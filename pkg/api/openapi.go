// SPDX-License-Identifier: Apache-2.0

package api

import (
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"

	"github.com/dt-netlab/pathcast/internal/logger"
)

// oapiBoilerplate mirrors the teacher's doc skeleton for GenerateCheckSpecs,
// adapted from "performance data per check" to "session state over the
// admin API".
var oapiBoilerplate = openapi3.T{
	OpenAPI: "3.0.0",
	Info: &openapi3.Info{
		Title:       "pathcast admin API",
		Description: "Read-only admin/metrics surface for the measurement engine",
	},
	Paths: &openapi3.Paths{
		Extensions: make(map[string]any),
	},
	Extensions: make(map[string]any),
	Components: &openapi3.Components{
		Schemas: make(openapi3.Schemas),
	},
	Servers: openapi3.Servers{},
}

// generateSchema builds the OpenAPI document describing /v1/sessions,
// mirroring the teacher's ChecksController.GenerateCheckSpecs: one schema
// ref generated from the response type, attached to one path.
func generateSchema() (openapi3.T, error) {
	doc := oapiBoilerplate

	ref, err := openapi3gen.NewSchemaRefForValue(SessionView{}, openapi3.Schemas{}, openapi3gen.UseAllExportedFields())
	if err != nil {
		return openapi3.T{}, ErrCreateOpenapiSchema{name: "sessions", err: err}
	}

	bodyDesc := "Snapshot of every live session"
	responses := &openapi3.Responses{}
	responses.Set(fmt.Sprint(http.StatusOK), &openapi3.ResponseRef{
		Value: &openapi3.Response{
			Description: &bodyDesc,
			Content:     openapi3.NewContentWithSchemaRef(openapi3.NewSchemaRef("", &openapi3.Schema{Type: &openapi3.Types{"array"}, Items: ref}), []string{"application/json"}),
		},
	})
	doc.Paths.Set("/v1/sessions", &openapi3.PathItem{
		Description: "sessions",
		Get: &openapi3.Operation{
			Description: "Returns the set of currently registered sessions",
			Tags:        []string{"sessions"},
			Responses:   responses,
		},
	})

	return doc, nil
}

func (a *api) serveOpenapi(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	doc, err := generateSchema()
	if err != nil {
		log.ErrorContext(r.Context(), "failed to generate openapi schema", "error", err)
		http.Error(w, "failed to generate openapi schema", http.StatusInternalServerError)
		return
	}
	writeJSON(w, doc)
}
