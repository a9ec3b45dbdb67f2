package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "MyIS Core API",
        "description": "Request workflow engine and Component2020 synchronization core",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Authentication", "description": "Login and current user"},
        {"name": "Requests", "description": "Request lifecycle and workflow actions"},
        {"name": "Workflow", "description": "Transition table administration"},
        {"name": "Dictionaries", "description": "Status dictionary"},
        {"name": "Catalog", "description": "Items, components and counterparties"},
        {"name": "Synchronization", "description": "Component2020 synchronization runs"},
        {"name": "Exports", "description": "CSV and PDF downloads"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user profile",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/requests": {
            "get": {
                "tags": ["Requests"],
                "summary": "List requests",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "typeCode", "in": "query", "type": "string"},
                    {"name": "statusId", "in": "query", "type": "string"},
                    {"name": "assigneeId", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Requests"],
                "summary": "Register a new request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateRequestRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/requests/{id}": {
            "get": {
                "tags": ["Requests"],
                "summary": "Request detail with history and available actions",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            },
            "patch": {
                "tags": ["Requests"],
                "summary": "Edit request fields",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateRequestRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/requests/{id}/actions": {
            "post": {
                "tags": ["Requests"],
                "summary": "Apply a workflow action",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApplyActionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Permission missing"},
                    "409": {"description": "Stale row version"},
                    "422": {"description": "No such transition"}
                }
            }
        },
        "/requests/{id}/available-actions": {
            "get": {
                "tags": ["Requests"],
                "summary": "Actions the current user may take",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/requests/{id}/comments": {
            "post": {
                "tags": ["Requests"],
                "summary": "Append a comment",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AddCommentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/workflow/{typeCode}/transitions": {
            "get": {
                "tags": ["Workflow"],
                "summary": "List the transition table of a request type",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "typeCode", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Workflow"],
                "summary": "Replace the transition table atomically",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "typeCode", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReplaceTransitionsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid table"}
                }
            }
        },
        "/statuses": {
            "get": {
                "tags": ["Dictionaries"],
                "summary": "List request statuses",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/items": {
            "get": {
                "tags": ["Catalog"],
                "summary": "List catalog entries",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "kind", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sync/runs": {
            "get": {
                "tags": ["Synchronization"],
                "summary": "List synchronization runs",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Synchronization"],
                "summary": "Trigger a synchronization run",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/StartSyncRequest"}}
                ],
                "responses": {
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Run already active for connection"}
                }
            }
        },
        "/sync/runs/{id}": {
            "get": {
                "tags": ["Synchronization"],
                "summary": "Run detail with errors and review items",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["login", "password"],
            "properties": {
                "login": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "CreateRequestRequest": {
            "type": "object",
            "required": ["typeCode", "subject"],
            "properties": {
                "typeCode": {"type": "string"},
                "subject": {"type": "string"},
                "description": {"type": "string"},
                "orgUnitId": {"type": "string"},
                "assigneeId": {"type": "string"},
                "dueDate": {"type": "string", "format": "date-time"}
            }
        },
        "UpdateRequestRequest": {
            "type": "object",
            "properties": {
                "subject": {"type": "string"},
                "description": {"type": "string"},
                "orgUnitId": {"type": "string"},
                "assigneeId": {"type": "string"},
                "dueDate": {"type": "string", "format": "date-time"}
            }
        },
        "ApplyActionRequest": {
            "type": "object",
            "required": ["actionCode"],
            "properties": {
                "actionCode": {"type": "string"},
                "comment": {"type": "string"},
                "rowVersion": {"type": "integer"}
            }
        },
        "AddCommentRequest": {
            "type": "object",
            "required": ["comment"],
            "properties": {
                "comment": {"type": "string"}
            }
        },
        "ReplaceTransitionsRequest": {
            "type": "object",
            "properties": {
                "transitions": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "fromStatusId": {"type": "string"},
                            "actionCode": {"type": "string"},
                            "toStatusId": {"type": "string"},
                            "requiredPermission": {"type": "string"},
                            "enabled": {"type": "boolean"}
                        }
                    }
                }
            }
        },
        "StartSyncRequest": {
            "type": "object",
            "required": ["connectionId", "scope", "mode"],
            "properties": {
                "connectionId": {"type": "string"},
                "scope": {"type": "string", "enum": ["ITEMS", "COMPONENTS", "COUNTERPARTIES"]},
                "mode": {"type": "string", "enum": ["DELTA", "SNAPSHOT_UPSERT", "OVERWRITE"]},
                "dryRun": {"type": "boolean"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
