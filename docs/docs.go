// Package docs holds the OpenAPI description served at /swagger.
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
        "/rooms": {
            "get": {
                "produces": ["application/json"],
                "tags": ["rooms"],
                "summary": "List rooms",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/rooms/{roomId}/availability": {
            "get": {
                "produces": ["application/json"],
                "tags": ["availability"],
                "summary": "Check whether a stay is free",
                "parameters": [
                    {"type": "string", "name": "roomId", "in": "path", "required": true},
                    {"type": "string", "description": "check-in, YYYY-MM-DD", "name": "start", "in": "query", "required": true},
                    {"type": "string", "description": "check-out, YYYY-MM-DD (exclusive)", "name": "end", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Invalid dates"},
                    "404": {"description": "Unknown room"}
                }
            }
        },
        "/availability/occupied": {
            "get": {
                "produces": ["application/json"],
                "tags": ["availability"],
                "summary": "Occupied dates for calendar widgets",
                "parameters": [
                    {"type": "string", "name": "room", "in": "query"},
                    {"type": "string", "name": "from", "in": "query", "required": true},
                    {"type": "string", "name": "to", "in": "query", "required": true}
                ],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/rooms/{roomId}/calendar.ics": {
            "get": {
                "produces": ["text/calendar"],
                "tags": ["reservations"],
                "summary": "Exported iCal feed of a room's reservations",
                "parameters": [{"type": "string", "name": "roomId", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/rooms/{roomId}/reservations": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["reservations"],
                "summary": "Create a pending reservation",
                "parameters": [{"type": "string", "name": "roomId", "in": "path", "required": true}],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Dates no longer available"}
                }
            }
        },
        "/reservations/{id}/payments": {
            "post": {
                "produces": ["application/json", "text/html"],
                "tags": ["payments"],
                "summary": "Start a card payment for a pending reservation",
                "parameters": [{"type": "string", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "201": {"description": "Signed redirect payload"},
                    "409": {"description": "Reservation not payable or busy"},
                    "503": {"description": "Payments disabled"}
                }
            }
        },
        "/payments/callback": {
            "post": {
                "consumes": ["application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["payments"],
                "summary": "Gateway result notification",
                "responses": {
                    "200": {"description": "Acknowledged"},
                    "400": {"description": "Missing MerchantSession"}
                }
            }
        },
        "/admin/calendar-sources/sync": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["calendar-sync"],
                "summary": "Sync every enabled external calendar",
                "responses": {
                    "200": {"description": "Sync report"},
                    "409": {"description": "A sync is already running"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Operator login",
                "responses": {
                    "200": {"description": "Token pair and operator"},
                    "401": {"description": "Invalid email or password"},
                    "403": {"description": "Account disabled"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Rotate the token pair; the presented refresh token is revoked",
                "responses": {
                    "200": {"description": "New token pair"},
                    "401": {"description": "Invalid, expired or revoked refresh token"}
                }
            }
        },
        "/auth/operators/{id}": {
            "patch": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Enable or disable an operator (admin)",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Updated operator"},
                    "404": {"description": "Operator not found"},
                    "409": {"description": "Cannot disable own account"}
                }
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Lodging Reservations API",
	Description:      "Availability, calendar sync and card payment settlement for a small lodging business.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
