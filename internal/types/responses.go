package types

// StatusResponse is served by the HTTP status endpoint.
type StatusResponse struct {
	Mode        string      `json:"mode"`        // "auto" or "manual"
	State       string      `json:"state"`       // State machine state
	Status      Status      `json:"status"`      // Latest published snapshot
	Connections int         `json:"connections"` // Open control connections
	Version     VersionInfo `json:"version"`     // Version information
}
