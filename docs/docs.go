// Package docs holds the OpenAPI description served at /swagger/index.html.
// Regenerate with: swag init -g main.go
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
        "/query": {
            "post": {
                "description": "Embed the query text and return the most similar (symbol, date) bars with company and recent closing prices",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["query"],
                "summary": "Similarity search over stored embeddings",
                "parameters": [
                    {
                        "description": "Query text and optional top_k",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/models.QueryRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.SearchResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/prices/{symbol}": {
            "get": {
                "description": "Return the most recent stored bars for a symbol, oldest first",
                "produces": ["application/json"],
                "tags": ["query"],
                "summary": "Recent daily bars for a symbol",
                "parameters": [
                    {"type": "string", "description": "Ticker symbol", "name": "symbol", "in": "path", "required": true},
                    {"type": "integer", "description": "Number of bars (defaults to HISTORY_LIMIT)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.GetPricesResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/admin/sync": {
            "post": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Fetch new daily bars for every reference symbol, store them, and embed any bars without a vector for the configured model",
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Run an incremental sync",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.RunReport"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        },
        "/admin/status": {
            "get": {
                "security": [{"ApiKeyAuth": []}],
                "description": "Row count and the first rows of each table; embedding rows show the vector dimension",
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Store contents",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/models.StatusResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/models.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/models.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "models.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "models.QueryRequest": {
            "type": "object",
            "required": ["query"],
            "properties": {
                "query": {"type": "string"},
                "top_k": {"type": "integer"}
            }
        },
        "models.PriceBarDTO": {
            "type": "object",
            "properties": {
                "date": {"type": "string"},
                "open": {"type": "number"},
                "high": {"type": "number"},
                "low": {"type": "number"},
                "close": {"type": "number"},
                "volume": {"type": "integer"}
            }
        },
        "models.Warning": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "models.SearchMatch": {
            "type": "object",
            "properties": {
                "rank": {"type": "integer"},
                "symbol": {"type": "string"},
                "name": {"type": "string"},
                "sector": {"type": "string"},
                "date": {"type": "string"},
                "similarity": {"type": "number"},
                "history": {"type": "array", "items": {"$ref": "#/definitions/models.PriceBarDTO"}}
            }
        },
        "models.SearchResponse": {
            "type": "object",
            "properties": {
                "query": {"type": "string"},
                "model": {"type": "string"},
                "status": {"type": "string", "enum": ["ok", "empty"]},
                "message": {"type": "string"},
                "matches": {"type": "array", "items": {"$ref": "#/definitions/models.SearchMatch"}},
                "warnings": {"type": "array", "items": {"$ref": "#/definitions/models.Warning"}}
            }
        },
        "models.GetPricesResponse": {
            "type": "object",
            "properties": {
                "symbol": {"type": "string"},
                "data_points": {"type": "integer"},
                "prices": {"type": "array", "items": {"$ref": "#/definitions/models.PriceBarDTO"}}
            }
        },
        "models.SymbolOutcome": {
            "type": "object",
            "properties": {
                "symbol": {"type": "string"},
                "status": {"type": "string", "enum": ["fetched", "up_to_date", "no_data", "failed"]},
                "start": {"type": "string"},
                "end": {"type": "string"},
                "bars_fetched": {"type": "integer"},
                "bars_stored": {"type": "integer"},
                "embedded": {"type": "integer"},
                "stage": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "models.BatchFailure": {
            "type": "object",
            "properties": {
                "table": {"type": "string"},
                "symbol": {"type": "string"},
                "batch_index": {"type": "integer"},
                "first_row": {"type": "integer"},
                "last_row": {"type": "integer"},
                "error": {"type": "string"}
            }
        },
        "models.RunReport": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "started_at": {"type": "string"},
                "finished_at": {"type": "string"},
                "companies": {"type": "integer"},
                "fetched": {"type": "integer"},
                "up_to_date": {"type": "integer"},
                "no_data": {"type": "integer"},
                "failed": {"type": "integer"},
                "symbols": {"type": "array", "items": {"$ref": "#/definitions/models.SymbolOutcome"}},
                "batch_failures": {"type": "array", "items": {"$ref": "#/definitions/models.BatchFailure"}},
                "warnings": {"type": "array", "items": {"$ref": "#/definitions/models.Warning"}}
            }
        },
        "models.TableCount": {
            "type": "object",
            "properties": {
                "table": {"type": "string"},
                "rows": {"type": "integer"},
                "preview": {"type": "array", "items": {"type": "object"}}
            }
        },
        "models.StatusResponse": {
            "type": "object",
            "properties": {
                "model": {"type": "string"},
                "tables": {"type": "array", "items": {"$ref": "#/definitions/models.TableCount"}}
            }
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {"type": "apiKey", "name": "X-API-Key", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "MarketSync API",
	Description:      "Incremental market data and embedding synchronizer with similarity search.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
