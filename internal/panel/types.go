// Package panel wraps the remote game-server panel application API.
//
// All wire shapes are normalised at this boundary: list responses arrive as
// {"data":[{"attributes":{...}}]} and single resources as either a bare
// object or {"attributes":{...}}. Callers only ever see the canonical types
// below, never the envelope variance.
package panel

import (
	"encoding/json"
	"time"
)

// User is a remote panel user account.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Node is a remote machine that hosts game servers.
type Node struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	FQDN string `json:"fqdn"`
}

// Allocation is an (ip, port) pair on a node assignable to one server.
type Allocation struct {
	ID       int64  `json:"id"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Alias    string `json:"alias"`
	Assigned bool   `json:"assigned"`
}

// Server is a provisioned remote game server.
type Server struct {
	ID           int64     `json:"id"`
	UUID         string    `json:"uuid"`
	Name         string    `json:"name"`
	Suspended    bool      `json:"suspended"`
	AllocationID int64     `json:"allocation"`
	NodeID       int64     `json:"node"`
	CreatedAt    time.Time `json:"created_at"`
}

// Limits carries the resource envelope for a create-server call.
type Limits struct {
	MemoryMB int `json:"memory"`
	DiskMB   int `json:"disk"`
	CPU      int `json:"cpu"`
	Swap     int `json:"swap"`
	IO       int `json:"io"`
}

// CreateUserInput are the fields required by the remote create-user endpoint.
type CreateUserInput struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
}

// CreateServerInput describes a create-server call.
type CreateServerInput struct {
	Name         string            `json:"name"`
	UserID       int64             `json:"user"`
	EggID        int64             `json:"egg"`
	DockerImage  string            `json:"docker_image"`
	Startup      string            `json:"startup"`
	Environment  map[string]string `json:"environment"`
	Limits       Limits            `json:"limits"`
	AllocationID int64             `json:"-"`
}

// envelope covers both wire shapes the panel emits for a single resource.
type envelope struct {
	Object     string          `json:"object"`
	Attributes json.RawMessage `json:"attributes"`
	Data       []envelope      `json:"data"`
}

// decodeOne unmarshals a single resource, tolerating both the enveloped
// ({"attributes":{...}}) and the bare-object shape.
func decodeOne(raw []byte, target any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Attributes) > 0 {
		return json.Unmarshal(env.Attributes, target)
	}
	return json.Unmarshal(raw, target)
}

// decodeList unmarshals a {"data":[...]} list into a slice of raw attribute
// payloads, tolerating bare-array responses.
func decodeList(raw []byte) ([]json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Data != nil {
		items := make([]json.RawMessage, 0, len(env.Data))
		for _, entry := range env.Data {
			if len(entry.Attributes) > 0 {
				items = append(items, entry.Attributes)
			}
		}
		return items, nil
	}
	var bare []json.RawMessage
	if err := json.Unmarshal(raw, &bare); err != nil {
		return nil, err
	}
	return bare, nil
}
