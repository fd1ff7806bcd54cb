// Package docs registers the Swagger specification for the HTTP API.
// Generated by swag; edits belong in the handler annotations.
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
        "/chat": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["chat"],
                "summary": "Answer a conversation grounded in the course catalog",
                "parameters": [
                    {
                        "description": "Conversation history, last message from the user",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handlers.ChatRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ChatResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/courses": {
            "get": {
                "produces": ["application/json"],
                "tags": ["courses"],
                "summary": "Search courses by code, name, or professor",
                "parameters": [
                    {"type": "string", "name": "code", "in": "query"},
                    {"type": "string", "name": "name", "in": "query"},
                    {"type": "string", "name": "professor", "in": "query"},
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/courses/code/{code}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["courses"],
                "summary": "List sections of a course code",
                "parameters": [
                    {"type": "string", "name": "code", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/courses/import": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["courses"],
                "summary": "Bulk upsert course sections",
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/courses/nrc/{nrc}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["courses"],
                "summary": "Fetch one course section by NRC",
                "parameters": [
                    {"type": "string", "name": "nrc", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/professors/{name}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["professors"],
                "summary": "Fetch aggregate info for one professor",
                "parameters": [
                    {"type": "string", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ProfessorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/professors/{name}/courses": {
            "get": {
                "produces": ["application/json"],
                "tags": ["professors"],
                "summary": "List the sections taught by one professor",
                "parameters": [
                    {"type": "string", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/generations": {
            "get": {
                "produces": ["application/json"],
                "tags": ["generations"],
                "summary": "List generation records, newest first",
                "parameters": [
                    {"type": "integer", "name": "page", "in": "query"},
                    {"type": "integer", "name": "page_size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListGenerationsResponse"}},
                    "304": {"description": "Not Modified"}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["generations"],
                "summary": "Create a text generation",
                "parameters": [
                    {
                        "description": "Prompt and optional sampling parameters",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handlers.CreateGenerationRequest"}
                    },
                    {"type": "string", "name": "Idempotency-Key", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "Replayed", "schema": {"$ref": "#/definitions/handlers.GenerationResponse"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handlers.GenerationResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/generations/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["generations"],
                "summary": "Fetch one generation record",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.GenerationResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "handlers.ChatRequest": {
            "type": "object",
            "required": ["messages"],
            "properties": {
                "messages": {
                    "type": "array",
                    "items": {"$ref": "#/definitions/handlers.ChatMessageDTO"}
                }
            }
        },
        "handlers.ChatMessageDTO": {
            "type": "object",
            "required": ["content", "role"],
            "properties": {
                "content": {"type": "string"},
                "role": {"type": "string"}
            }
        },
        "handlers.ChatResponse": {
            "type": "object",
            "properties": {
                "courses": {"type": "array", "items": {"type": "string"}},
                "response": {"type": "string"}
            }
        },
        "handlers.CreateGenerationRequest": {
            "type": "object",
            "required": ["prompt"],
            "properties": {
                "client_id": {"type": "string"},
                "max_tokens": {"type": "integer"},
                "prompt": {"type": "string"},
                "temperature": {"type": "number"}
            }
        },
        "handlers.GenerationResponse": {
            "type": "object",
            "properties": {
                "generation": {"type": "object"}
            }
        },
        "handlers.ListGenerationsResponse": {
            "type": "object",
            "properties": {
                "generations": {"type": "array", "items": {"type": "object"}},
                "pagination": {"type": "object"}
            }
        },
        "handlers.ProfessorResponse": {
            "type": "object",
            "properties": {
                "average_rating": {"type": "number"},
                "name": {"type": "string"},
                "total_courses": {"type": "integer"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "request_id": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "GenAI Backend API",
	Description:      "Generative-text orchestration with persistence, idempotent replay, and a catalog-grounded chat endpoint.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
