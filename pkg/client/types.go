package client

import "time"

// CreateRequest describes a new instance. Empty launch fields take server defaults.
type CreateRequest struct {
	Name           string   `json:"name"`
	Software       string   `json:"software"`
	Version        string   `json:"version"`
	Loader         string   `json:"loader,omitempty"`
	CustomJarPath  string   `json:"custom_jar_path,omitempty"`
	IconPath       string   `json:"icon_path,omitempty"`
	JavaPath       string   `json:"java_path,omitempty"`
	MinMemory      string   `json:"min_memory,omitempty"`
	MaxMemory      string   `json:"max_memory,omitempty"`
	AdditionalArgs []string `json:"additional_args,omitempty"`
}

// JavaConfig holds the launch parameters of an instance.
type JavaConfig struct {
	MinMemory      string   `json:"min_memory"`
	MaxMemory      string   `json:"max_memory"`
	JavaPath       string   `json:"java_path,omitempty"`
	AdditionalArgs []string `json:"additional_args"`
}

// InstanceConfig mirrors an instance's nuko.toml.
type InstanceConfig struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Software string     `json:"software"`
	Version  string     `json:"version"`
	Loader   string     `json:"loader,omitempty"`
	Java     JavaConfig `json:"java"`
}

// Instance is returned by Create.
type Instance struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Dir    string         `json:"dir"`
	Config InstanceConfig `json:"config"`
}

// InstanceInfo is an instance with its run state.
type InstanceInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Dir      string `json:"dir"`
	Software string `json:"software"`
	Version  string `json:"version"`
	Loader   string `json:"loader,omitempty"`
	Running  bool   `json:"running"`
	PID      int    `json:"pid,omitempty"`
	Attached bool   `json:"attached"`
}

// Sample is a point-in-time resource reading.
type Sample struct {
	Time        time.Time `json:"time"`
	CPUPercent  float64   `json:"cpu_percent"`
	MemoryBytes uint64    `json:"memory_bytes"`
	Processes   int       `json:"processes"`
}

// LogsPage is a slice of an instance's output starting at an offset. Run
// identifies the worker run the lines and Next belong to.
type LogsPage struct {
	Lines []string `json:"lines"`
	Next  int      `json:"next"`
	Run   uint64   `json:"run"`
}

// HistoryEvent is one recorded lifecycle transition.
type HistoryEvent struct {
	Type       string    `json:"type"`
	InstanceID string    `json:"instance_id"`
	Name       string    `json:"name"`
	PID        int       `json:"pid"`
	OccurredAt time.Time `json:"occurred_at"`
	Detail     string    `json:"detail,omitempty"`
}

// ErrorResponse is the body of a failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type statusResponse struct {
	ID      string `json:"id"`
	Running bool   `json:"running"`
}

type commandRequest struct {
	Command string `json:"command"`
}
