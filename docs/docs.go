// Package docs registers the swagger spec that ginSwagger.WrapHandler
// serves at /swagger/*any, the generated-package shape `swag init`
// produces (imported blank in cmd/podflow/main.go).
package docs

import (
	"github.com/swaggo/swag"
)

const doc = `{
  "swagger": "2.0",
  "info": {
    "title": "{{.Title}}",
    "description": "{{.Description}}",
    "contact": {},
    "version": "{{.Version}}"
  },
  "paths": {
    "/": {
      "get": {
        "produces": ["text/plain"],
        "summary": "Report liveness",
        "responses": {"200": {"description": "OK"}}
      }
    },
    "/graph": {
      "post": {
        "consumes": ["application/json"],
        "produces": ["application/json"],
        "tags": ["graph"],
        "summary": "Validate a node graph definition and report what it advertises",
        "responses": {"200": {"description": "OK"}, "400": {"description": "Request is invalid"}}
      }
    },
    "/eval": {
      "post": {
        "consumes": ["application/json"],
        "produces": ["multipart/mixed"],
        "tags": ["eval"],
        "summary": "Evaluate a node graph over a set of request coordinates",
        "responses": {"200": {"description": "OK"}, "400": {"description": "Request is invalid"}, "502": {"description": "An upstream source was unavailable"}}
      }
    }
  }
}`

// SwaggerInfo holds exported swagger spec metadata, the same name swag's
// generator uses so cmd/podflow/main.go's @title/@version header block
// populates it without any further wiring.
var SwaggerInfo = &swag.Spec{
	Version:          "0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"https"},
	Title:            "podflow API",
	Description:      "Evaluates lazy, composable geospatial/temporal raster pipelines.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  doc,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
