package config

import (
	"time"
)

//go:generate go run github.com/ecordell/optgen -output zz_generated.configuration_options.go . Configuration

// Configuration holds everything a run of the harness needs. It is built once
// by the command and passed explicitly.
type Configuration struct {
	Orb         Orb         `debugmap:"visible"`
	Credentials Credentials `debugmap:"sensitive"`
	Agent       Agent       `debugmap:"visible"`
	Podman      Podman      `debugmap:"visible"`
	Timeouts    Timeouts    `debugmap:"visible"`
	FleetDB     FleetDB     `debugmap:"sensitive"`
	Sink        Sink        `debugmap:"sensitive"`
	Cleanup     Cleanup     `debugmap:"visible"`
	Log         Log         `debugmap:"visible"`
	EnvFile     string      `debugmap:"visible"`
}

type Orb struct {
	URL       string `default:"https://orb.live" validate:"required,url"`
	MQTTURL   string `default:"tls://orb.live:8883" validate:"required,url"`
	VerifyTLS bool   `default:"true"`
}

type Credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

type Agent struct {
	Image      string `default:"orbcommunity/orb-agent:develop" validate:"required"`
	Interface  string `default:"auto" validate:"required"`
	MinVersion string `default:"0.0.0" validate:"required,semver"`
	// ConfigDir is the host directory holding generated agent config files.
	ConfigDir string `default:"/tmp/orb-acceptance"`
}

type Podman struct {
	Socket string `default:"unix:///run/podman/podman.sock" validate:"required"`
}

// Timeouts bound the waiters. Interval is the poll interval shared by all of them.
type Timeouts struct {
	Interval  time.Duration `default:"500ms" validate:"gt=0"`
	Agent     time.Duration `default:"30s" validate:"gt=0"`
	Policy    time.Duration `default:"180s" validate:"gt=0"`
	Group     time.Duration `default:"30s" validate:"gt=0"`
	Dataset   time.Duration `default:"30s" validate:"gt=0"`
	Logs      time.Duration `default:"120s" validate:"gt=0"`
	Container time.Duration `default:"30s" validate:"gt=0"`
	Request   time.Duration `default:"30s" validate:"gt=0"`
}

type FleetDB struct {
	DSN string `validate:"omitempty,url"`
}

// Sink is the prometheus remote write endpoint datasets push to.
type Sink struct {
	RemoteHost string `default:"https://prometheus.example.com/api/prom/push" validate:"required,url"`
	Username   string
	Password   string
}

type Cleanup struct {
	Enabled bool `default:"true"`
	Workers int  `default:"4" validate:"min=1,max=64"`
}

type Log struct {
	Level      string `default:"info" validate:"oneof=debug info warn error"`
	Format     string `default:"console" validate:"oneof=console json"`
	File       string
	MaxSizeMB  int `default:"50" validate:"min=1"`
	MaxBackups int `default:"3" validate:"min=0"`
}
