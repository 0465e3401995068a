// Package settings loads the run configuration: where the target site lives, how to reach
// its admin area, and how long each kind of wait may take.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/TheLab-ms/innkeeper/engine/browser"
)

// EnvPrefix is prepended to every environment override, e.g. INNKEEPER_BASE_URL.
const EnvPrefix = "INNKEEPER_"

type Settings struct {
	BaseURL  string `json:"baseURL" env:"BASE_URL"`
	Headless bool   `json:"headless" env:"HEADLESS"`
	Auth     Auth   `json:"auth" envPrefix:"AUTH_"`

	// Engine selects the browser adapter: playwright, rod, or static.
	Engine string `json:"engine" env:"ENGINE"`

	// RodControlURL points the rod engine at an already running browser's DevTools endpoint.
	RodControlURL string `json:"rodControlURL" env:"ROD_CONTROL_URL"`

	// Contract names an embedded selector contract. ContractFile takes precedence when set.
	Contract     string `json:"contract" env:"CONTRACT"`
	ContractFile string `json:"contractFile" env:"CONTRACT_FILE"`

	Timeouts    Timeouts    `json:"timeouts" envPrefix:"TIMEOUT_"`
	Fixtures    Fixtures    `json:"fixtures" envPrefix:"FIXTURE_"`
	Reservation Reservation `json:"reservation" envPrefix:"RESERVATION_"`
	Sweep       Sweep       `json:"sweep" envPrefix:"SWEEP_"`

	// Parallelism bounds how many scenarios run at once, each in its own browser.
	Parallelism int `json:"parallelism" env:"PARALLELISM"`

	// Watch mode.
	HTTPAddr  string   `json:"httpAddr" env:"HTTP_ADDR"`
	DataDir   string   `json:"dataDir" env:"DATA_DIR"`
	Interval  Duration `json:"interval" env:"INTERVAL"`
	Retention Duration `json:"retention" env:"RETENTION"`
}

type Auth struct {
	Username string `json:"username" env:"USERNAME"`
	Password string `json:"password" env:"PASSWORD"`
}

type Timeouts struct {
	Element    Duration `json:"element" env:"ELEMENT"`
	URL        Duration `json:"url" env:"URL"`
	Settle     Duration `json:"settle" env:"SETTLE"`
	Navigation Duration `json:"navigation" env:"NAVIGATION"`
	Scenario   Duration `json:"scenario" env:"SCENARIO"`
}

// Fixtures are file paths. Relative paths resolve against the settings file's directory.
type Fixtures struct {
	Payload          string `json:"payload" env:"PAYLOAD"`
	InvalidPasswords string `json:"invalidPasswords" env:"INVALID_PASSWORDS"`
}

type Reservation struct {
	RoomID string `json:"roomId" env:"ROOM_ID"`

	// RoomIndex is the 1-based position of the room card opened from the home page.
	RoomIndex int `json:"roomIndex" env:"ROOM_INDEX"`
}

type Sweep struct {
	// Username defaults to Auth.Username.
	Username          string  `json:"username" env:"USERNAME"`
	ExpectedError     string  `json:"expectedError" env:"EXPECTED_ERROR"`
	AttemptsPerSecond float64 `json:"attemptsPerSecond" env:"ATTEMPTS_PER_SECOND"`
}

// Default returns the settings every file is layered over.
func Default() *Settings {
	return &Settings{
		Headless: true,
		Engine:   browser.EnginePlaywright,
		Contract: "booker-v2",
		Timeouts: Timeouts{
			Element:    Duration(5 * time.Second),
			URL:        Duration(5 * time.Second),
			Settle:     Duration(2 * time.Second),
			Navigation: Duration(30 * time.Second),
			Scenario:   Duration(2 * time.Minute),
		},
		Reservation: Reservation{RoomID: "2", RoomIndex: 2},
		Sweep:       Sweep{ExpectedError: "Invalid credentials"},
		Parallelism: 2,
		HTTPAddr:    ":8080",
		DataDir:     ".",
		Interval:    Duration(15 * time.Minute),
		Retention:   Duration(30 * 24 * time.Hour),
	}
}

// Load reads the JSON settings file at path, then applies environment overrides.
// Keys match case-insensitively. Every failure is a *ConfigurationError.
func Load(path string) (*Settings, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Path: path, Err: err}
	}

	s := Default()
	if err := json.Unmarshal(buf, s); err != nil {
		return nil, &ConfigurationError{Path: path, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	if err := s.applyEnv(); err != nil {
		return nil, &ConfigurationError{Path: path, Err: err}
	}
	s.Fixtures.Payload = relativeTo(path, s.Fixtures.Payload)
	s.Fixtures.InvalidPasswords = relativeTo(path, s.Fixtures.InvalidPasswords)
	s.ContractFile = relativeTo(path, s.ContractFile)

	if err := s.Validate(); err != nil {
		var ce *ConfigurationError
		if errors.As(err, &ce) {
			ce.Path = path
		}
		return nil, err
	}
	return s, nil
}

// applyEnv overlays INNKEEPER_* variables. Unset variables leave the current value alone.
func (s *Settings) applyEnv() error {
	return env.ParseWithOptions(s, env.Options{Prefix: EnvPrefix})
}

// Validate checks the invariants navigation depends on.
func (s *Settings) Validate() error {
	if s.BaseURL == "" {
		return &ConfigurationError{Field: "baseURL", Err: errors.New("is required")}
	}
	u, err := url.Parse(s.BaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &ConfigurationError{Field: "baseURL", Err: fmt.Errorf("%q is not an absolute URL", s.BaseURL)}
	}
	switch s.Engine {
	case browser.EnginePlaywright, browser.EngineRod, browser.EngineStatic:
	default:
		return &ConfigurationError{Field: "engine", Err: fmt.Errorf("unknown engine %q", s.Engine)}
	}
	for name, d := range map[string]Duration{
		"timeouts.element":    s.Timeouts.Element,
		"timeouts.url":        s.Timeouts.URL,
		"timeouts.settle":     s.Timeouts.Settle,
		"timeouts.navigation": s.Timeouts.Navigation,
		"timeouts.scenario":   s.Timeouts.Scenario,
	} {
		if d <= 0 {
			return &ConfigurationError{Field: name, Err: fmt.Errorf("must be positive, got %s", d)}
		}
	}
	if s.Reservation.RoomIndex < 1 {
		return &ConfigurationError{Field: "reservation.roomIndex", Err: fmt.Errorf("must be 1 or greater, got %d", s.Reservation.RoomIndex)}
	}
	if s.Parallelism < 1 {
		return &ConfigurationError{Field: "parallelism", Err: fmt.Errorf("must be 1 or greater, got %d", s.Parallelism)}
	}
	if s.Sweep.AttemptsPerSecond < 0 {
		return &ConfigurationError{Field: "sweep.attemptsPerSecond", Err: errors.New("must not be negative")}
	}
	return nil
}

// SweepUsername is the account the invalid-login sweep targets.
func (s *Settings) SweepUsername() string {
	if s.Sweep.Username != "" {
		return s.Sweep.Username
	}
	return s.Auth.Username
}

// BrowserOptions maps the settings onto engine launch options.
func (s *Settings) BrowserOptions() browser.Options {
	return browser.Options{Headless: s.Headless, Timeout: s.Timeouts.Navigation.Std()}
}

func relativeTo(settingsPath, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(settingsPath), p)
}

// ConfigurationError is fatal: the run cannot start.
type ConfigurationError struct {
	Path  string
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	msg := "invalid configuration"
	if e.Path != "" {
		msg += " in " + e.Path
	}
	if e.Field != "" {
		msg += ": " + e.Field
	}
	return msg + ": " + e.Err.Error()
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Duration is a time.Duration written as a Go duration string ("5s") in JSON and env.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
