/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Request bodies and the few response wrappers that are not planning types.
  Schema, table and write results are serialized straight from the planning
  package, whose JSON tags are the wire contract.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers

VALIDATION:
  Validation is done in handlers and engines, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
  - planning/types.go: Wire types shared with the engines
*/
package api

import (
	"github.com/warp/planning-engine/planning"
	"github.com/warp/planning-engine/store/sqlite"
)

// ConnectRequest carries engine credentials. Every field is optional.
type ConnectRequest struct {
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

func (r ConnectRequest) credentials() planning.Credentials {
	return planning.Credentials{Email: r.Email, Password: r.Password, Token: r.Token}
}

// WriteCellsRequest is a write batch for one module and version.
type WriteCellsRequest struct {
	Version string               `json:"version"`
	Cells   []planning.CellWrite `json:"cells"`
}

// SaveConnectionRequest stores a named credential for an engine.
type SaveConnectionRequest struct {
	Name     string `json:"name"`
	EngineID string `json:"engineId"`
	Email    string `json:"email,omitempty"`
	Token    string `json:"token"`
}

func (r SaveConnectionRequest) toRecord() sqlite.SavedConnection {
	return sqlite.SavedConnection{Name: r.Name, EngineID: r.EngineID, Email: r.Email, Token: r.Token}
}

// OKResponse acknowledges a command with no payload.
type OKResponse struct {
	OK bool `json:"ok"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
