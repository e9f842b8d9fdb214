// Package dispatch submits passive service check results to Icinga2, either
// through the external command file or through the REST API.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/geekxflood/trapdirector/logging"
)

// Service states.
const (
	StateOK       = 0
	StateWarning  = 1
	StateCritical = 2
	StateUnknown  = 3
)

// Check is one service check result.
type Check struct {
	Host    string
	Service string
	State   int
	Display string
}

// Result reports what the monitoring side answered.
type Result struct {
	OK      bool
	Message string
}

// Submitter sends service check results.
type Submitter interface {
	Submit(ctx context.Context, check Check) (Result, error)
}

// Config selects and configures a Submitter. The API is used when APIHost
// is set, the command file otherwise.
type Config struct {
	CommandFile string

	APIHost     string
	APIPort     int
	APIUser     string
	APIPassword string
	Insecure    bool
	Timeout     time.Duration
}

// New builds the Submitter described by cfg.
func New(cfg Config, log logging.Logger) (Submitter, error) {
	if log == nil {
		log = logging.NewComponentLogger("dispatch", "submitter")
	}
	if cfg.APIHost != "" {
		return NewAPI(APIConfig{
			Host:     cfg.APIHost,
			Port:     cfg.APIPort,
			User:     cfg.APIUser,
			Password: cfg.APIPassword,
			Insecure: cfg.Insecure,
			Timeout:  cfg.Timeout,
		}, log), nil
	}
	if cfg.CommandFile == "" {
		return nil, errors.New("neither API host nor command file configured")
	}
	return NewCommandFile(cfg.CommandFile, log), nil
}

func validate(check Check) error {
	if check.Host == "" || check.Service == "" {
		return fmt.Errorf("check needs host and service, got %q/%q", check.Host, check.Service)
	}
	if check.State < StateOK || check.State > StateUnknown {
		return fmt.Errorf("invalid state %d for %s/%s", check.State, check.Host, check.Service)
	}
	return nil
}
