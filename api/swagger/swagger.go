package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Check-in API",
        "description": "Class attendance check-ins backed by a JSON document",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": ["http"],
    "tags": [
        {"name": "Classes", "description": "Classes and their students"},
        {"name": "Check-ins", "description": "Recording attendance"},
        {"name": "Reports", "description": "Audit log and login summaries"},
        {"name": "Roster", "description": "Bulk roster import"},
        {"name": "Admin", "description": "Document maintenance"}
    ],
    "paths": {
        "/classes": {
            "get": {
                "tags": ["Classes"],
                "summary": "List classes in document order",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Classes"],
                "summary": "Add an empty class",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AddClassRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Blank, reserved or duplicate name", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{name}": {
            "delete": {
                "tags": ["Classes"],
                "summary": "Delete a class and its attendance history",
                "parameters": [{"name": "name", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Unknown class", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/classes/{name}/students": {
            "get": {
                "tags": ["Classes"],
                "summary": "List students of a class",
                "parameters": [{"name": "name", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/checkins": {
            "post": {
                "tags": ["Check-ins"],
                "summary": "Record a check-in at the current time",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CheckInRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid class or name", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/audit": {
            "get": {
                "tags": ["Reports"],
                "summary": "List check-ins of one day",
                "parameters": [
                    {"name": "date", "in": "query", "type": "string", "format": "date"},
                    {"name": "sort", "in": "query", "type": "string", "enum": ["date_time_desc", "date_time_asc", "student_name", "course"]}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/audit/export": {
            "post": {
                "tags": ["Reports"],
                "summary": "Write the audit log of one day",
                "parameters": [
                    {"name": "date", "in": "query", "type": "string", "format": "date"},
                    {"name": "sort", "in": "query", "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["txt", "csv", "pdf"]}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/reports/summary": {
            "get": {
                "tags": ["Reports"],
                "summary": "Check-in totals per student per class",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/reports/summary/export": {
            "post": {
                "tags": ["Reports"],
                "summary": "Write the login-count report",
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["txt", "csv", "pdf"]}
                ],
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/roster/import": {
            "post": {
                "tags": ["Roster"],
                "summary": "Import a class roster from CSV or XLSX",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "file", "in": "formData", "required": true, "type": "file"},
                    {"name": "skip", "in": "query", "type": "integer", "minimum": 0, "maximum": 10}
                ],
                "responses": {
                    "200": {"description": "Imported", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Malformed roster", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/reload": {
            "post": {
                "tags": ["Admin"],
                "summary": "Re-read the attendance document from disk",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "500": {"description": "Document unreadable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/export/{token}": {
            "get": {
                "tags": ["Reports"],
                "summary": "Download a generated export",
                "parameters": [{"name": "token", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "File"}, "404": {"description": "Invalid or expired link"}}
            }
        }
    },
    "definitions": {
        "AddClassRequest": {
            "type": "object",
            "required": ["name"],
            "properties": {"name": {"type": "string"}}
        },
        "CheckInRequest": {
            "type": "object",
            "required": ["class", "name"],
            "properties": {"class": {"type": "string"}, "name": {"type": "string"}}
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
