package main

import "time"

// GlobalFlags are shared by every client subcommand.
type GlobalFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// ServeFlags Flag structs to decouple cobra from logic for testing.
type ServeFlags struct {
	ConfigPath string
	StopOnExit bool
}

type CreateFlags struct {
	Name           string
	Software       string
	Version        string
	Loader         string
	CustomJarPath  string
	IconPath       string
	JavaPath       string
	MinMemory      string
	MaxMemory      string
	AdditionalArgs []string
}

type ListFlags struct {
	JSON bool
}

type RestartFlags struct {
	Wait time.Duration
}

type LogsFlags struct {
	Since    int
	Follow   bool
	Interval time.Duration
}

type HistoryFlags struct {
	Limit int
}
