package model

type SystemStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryTotal   uint64  `json:"memory_total"`
	MemoryUsed    uint64  `json:"memory_used"`
	MemoryPercent float64 `json:"memory_percent"`
	Load1         float64 `json:"load_1"`
	Load5         float64 `json:"load_5"`
	Load15        float64 `json:"load_15"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

type StorageStats struct {
	Path    string  `json:"path"`
	Total   uint64  `json:"total"`
	Used    uint64  `json:"used"`
	Free    uint64  `json:"free"`
	Percent float64 `json:"percent"`
}

type NetworkStats struct {
	Interfaces int    `json:"interfaces"`
	RxBytes    uint64 `json:"rx_bytes"`
	TxBytes    uint64 `json:"tx_bytes"`
}

type ContainerInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Image   string `json:"image"`
	State   string `json:"state"`
	Status  string `json:"status"`
	Project string `json:"project,omitempty"`
	Service string `json:"service,omitempty"`
}

type RunningApp struct {
	AppID      string   `json:"app_id"`
	Name       string   `json:"name"`
	Icon       string   `json:"icon"`
	WebUIPort  string   `json:"web_ui_port,omitempty"`
	Containers []string `json:"containers"`
}

// Snapshot is the result of one poll of live host state.
type Snapshot struct {
	System          *SystemStats    `json:"system"`
	Storage         *StorageStats   `json:"storage"`
	Network         *NetworkStats   `json:"network"`
	RunningApps     []RunningApp    `json:"running_apps"`
	InstalledApps   []InstalledApp  `json:"installed_apps"`
	OtherContainers []ContainerInfo `json:"other_containers"`
}

// State is what every subscriber of the broadcast hub receives.
type State struct {
	Snapshot
	InstallProgress []InstallProgress `json:"install_progress"`
	Connected       bool              `json:"connected"`
	LastError       string            `json:"last_error,omitempty"`
}
