// Package docs provides swagger documentation for the mailbox stub API.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{escape .Description}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/gmail/v1/users/{user}/messages": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Lists ids of messages, newest first. Only the to: search operator is supported.",
                "produces": ["application/json"],
                "tags": ["Gmail"],
                "summary": "List messages",
                "parameters": [
                    {"type": "string", "description": "User id, usually me", "name": "user", "in": "path", "required": true},
                    {"type": "string", "description": "Search query, e.g. to:qa+x@example.com", "name": "q", "in": "query"},
                    {"type": "string", "description": "Only messages with this label", "name": "labelIds", "in": "query"},
                    {"type": "integer", "description": "Page size (default 100)", "name": "maxResults", "in": "query"},
                    {"type": "string", "description": "Page token from a previous response", "name": "pageToken", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/gmail.ListMessagesResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/mailstub.gmailError"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/mailstub.gmailError"}}
                }
            }
        },
        "/gmail/v1/users/{user}/messages/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Gmail"],
                "summary": "Get a message",
                "parameters": [
                    {"type": "string", "description": "User id, usually me", "name": "user", "in": "path", "required": true},
                    {"type": "string", "description": "Message id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/gmail.Message"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/mailstub.gmailError"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/mailstub.gmailError"}}
                }
            }
        },
        "/healthz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Stub"],
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        },
        "/stub/messages": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Adds a message to the mailbox. Labels default to INBOX.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Stub"],
                "summary": "Deliver a message",
                "parameters": [
                    {"description": "Message to deliver", "name": "message", "in": "body", "required": true, "schema": {"$ref": "#/definitions/mailstub.DeliverRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/mailstub.DeliverResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/mailstub.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/mailstub.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["Stub"],
                "summary": "Delete all messages",
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        }
    },
    "definitions": {
        "gmail.ListMessagesResponse": {
            "type": "object",
            "properties": {
                "messages": {"type": "array", "items": {"$ref": "#/definitions/gmail.Message"}},
                "nextPageToken": {"type": "string"},
                "resultSizeEstimate": {"type": "integer"}
            }
        },
        "gmail.Message": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "threadId": {"type": "string"},
                "labelIds": {"type": "array", "items": {"type": "string"}},
                "internalDate": {"type": "string", "example": "1714987800000"},
                "snippet": {"type": "string"},
                "payload": {"$ref": "#/definitions/gmail.MessagePart"}
            }
        },
        "gmail.MessagePart": {
            "type": "object",
            "properties": {
                "mimeType": {"type": "string"},
                "headers": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {"name": {"type": "string"}, "value": {"type": "string"}}
                    }
                },
                "body": {
                    "type": "object",
                    "properties": {"data": {"type": "string", "description": "base64url"}, "size": {"type": "integer"}}
                },
                "parts": {"type": "array", "items": {"$ref": "#/definitions/gmail.MessagePart"}}
            }
        },
        "mailstub.DeliverRequest": {
            "type": "object",
            "required": ["to"],
            "properties": {
                "to": {"type": "array", "items": {"type": "string"}, "example": ["qa+3f2a9c@example.com"]},
                "from": {"type": "string", "example": "no-reply@penpot.test"},
                "subject": {"type": "string", "example": "Invitation to join QA"},
                "text": {"type": "string"},
                "html": {"type": "string"},
                "labels": {"type": "array", "items": {"type": "string", "enum": ["INBOX", "SPAM"]}},
                "received_at": {"type": "string", "format": "date-time"}
            }
        },
        "mailstub.DeliverResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"}
            }
        },
        "mailstub.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "invalid request body"}
            }
        },
        "mailstub.gmailError": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "integer"},
                        "message": {"type": "string"},
                        "status": {"type": "string"}
                    }
                }
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header",
            "description": "Bearer token, when the stub runs with MAILSTUB_TOKEN"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8025",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Mailbox Stub API",
	Description:      "In-memory mailbox answering the Gmail message list/get subset",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
