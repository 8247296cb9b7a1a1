package ipc

// Commands understood by a running volmixer instance.
const (
	CommandStatus   = "status"
	CommandMappings = "mappings"
	CommandRefresh  = "refresh"
)

type Request struct {
	Command string `json:"command"`
}

type Response struct {
	OK       bool             `json:"ok"`
	State    string           `json:"state,omitempty"`
	Message  string           `json:"message,omitempty"`
	Error    string           `json:"error,omitempty"`
	RunID    string           `json:"run_id,omitempty"`
	Port     string           `json:"port,omitempty"`
	Counters *Counters        `json:"counters,omitempty"`
	Mappings map[string][]int `json:"mappings,omitempty"`
}

// Counters mirrors the engine's routing statistics.
type Counters struct {
	Lines         uint64 `json:"lines"`
	DecodeErrors  uint64 `json:"decode_errors"`
	Unrouted      uint64 `json:"unrouted"`
	Applied       uint64 `json:"applied"`
	ApplyErrors   uint64 `json:"apply_errors"`
	Resolutions   uint64 `json:"resolutions"`
	Invalidations uint64 `json:"invalidations"`
}
