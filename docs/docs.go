// Package docs is generated by swag from the handler annotations.
// Regenerate with: swag init -g cmd/mirror/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/healthz": {
            "get": {
                "tags": ["health"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}}
            }
        },
        "/readyz": {
            "get": {
                "tags": ["health"],
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/api/v1/wallets": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["wallets"],
                "summary": "List watched wallets with portfolio summaries",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}
            }
        },
        "/api/v1/wallets/{address}/activities": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["wallets"],
                "summary": "List trades of a watched wallet",
                "parameters": [
                    {"type": "string", "description": "wallet address", "name": "address", "in": "path", "required": true},
                    {"type": "boolean", "description": "filter by processed flag", "name": "processed", "in": "query"},
                    {"type": "integer", "description": "page size", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "offset", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.apiResponse"}}
                }
            }
        },
        "/api/v1/wallets/{address}/positions": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["wallets"],
                "summary": "Latest position snapshot of a watched wallet",
                "parameters": [
                    {"type": "string", "description": "wallet address", "name": "address", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.apiResponse"}}
                }
            }
        },
        "/api/v1/activities/{id}/processed": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["activities"],
                "summary": "Mark a trade as handled by the downstream strategy",
                "parameters": [
                    {"type": "integer", "description": "activity id", "name": "id", "in": "path", "required": true},
                    {"description": "execution attempts", "name": "body", "in": "body", "schema": {"$ref": "#/definitions/handler.markProcessedRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handler.apiResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.apiResponse"}}
                }
            }
        },
        "/api/v1/books/{asset_id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Returns 404 when the book was not updated within max_age_ms.",
                "tags": ["books"],
                "summary": "Cached order book of an asset",
                "parameters": [
                    {"type": "string", "description": "asset (token) id", "name": "asset_id", "in": "path", "required": true},
                    {"type": "integer", "description": "freshness bound in milliseconds", "name": "max_age_ms", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handler.apiResponse"}}
                }
            }
        },
        "/api/v1/feed/status": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["books"],
                "summary": "Market feed connection and cache status",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.apiResponse"}}}
            }
        }
    },
    "definitions": {
        "handler.apiResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer"},
                "data": {},
                "message": {"type": "string"},
                "meta": {"type": "object", "additionalProperties": true}
            }
        },
        "handler.markProcessedRequest": {
            "type": "object",
            "properties": {
                "attempts": {"type": "integer"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Polymarket Wallet Mirror API",
	Description:      "Read access to mirrored trades, positions and live order books.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
