package pages

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed contracts/*.yaml
var contractFS embed.FS

// DefaultContract is the selector set used when none is configured.
const DefaultContract = "booker-v2"

// Contract is the versioned set of routes and selectors page objects rely on.
// It is read-only once loaded and may be shared between concurrent scenarios.
type Contract struct {
	Version string         `yaml:"version"`
	Routes  Routes         `yaml:"routes"`
	Home    HomeContract   `yaml:"home"`
	Login   LoginContract  `yaml:"login"`
	Room    RoomContract   `yaml:"room"`
	Report  ReportContract `yaml:"report"`
}

type Routes struct {
	Home       string `yaml:"home"`
	AdminLogin string `yaml:"adminLogin"`
	AdminArea  string `yaml:"adminArea"`

	// Reservation contains a {roomId} placeholder.
	Reservation string `yaml:"reservation"`
	StartParam  string `yaml:"startParam"`
	EndParam    string `yaml:"endParam"`

	Report string `yaml:"report"`
}

type HomeContract struct {
	AdminLink string `yaml:"adminLink"`
	FrontLink string `yaml:"frontLink"`

	// RoomAction is a format string taking the 1-based room index.
	RoomAction string `yaml:"roomAction"`
}

type LoginContract struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Submit   string `yaml:"submit"`
	Error    string `yaml:"error"`
}

type RoomContract struct {
	Heading string `yaml:"heading"`
	Reserve string `yaml:"reserve"`

	// Fields maps payload keys to inputs, in the order the form presents them.
	Fields []FormField `yaml:"fields"`
	Submit string      `yaml:"submit"`

	// Confirmation is optional. When set, a booking is not done until it is visible.
	Confirmation string `yaml:"confirmation,omitempty"`
}

type FormField struct {
	Name     string `yaml:"name"`
	Selector string `yaml:"selector"`
}

type ReportContract struct {
	Event  string `yaml:"event"`
	Logout string `yaml:"logout"`
}

// Field returns the selector mapped to a payload key.
func (r *RoomContract) Field(name string) (string, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Selector, true
		}
	}
	return "", false
}

// ReservationPath renders the reservation route for a room and date range.
// The start parameter always precedes the end parameter.
func (r *Routes) ReservationPath(roomID, start, end string) string {
	path := strings.ReplaceAll(r.Reservation, "{roomId}", url.PathEscape(roomID))
	return fmt.Sprintf("%s?%s=%s&%s=%s", path,
		url.QueryEscape(r.StartParam), url.QueryEscape(start),
		url.QueryEscape(r.EndParam), url.QueryEscape(end))
}

// Validate reports every required route or selector that is empty.
func (c *Contract) Validate() error {
	required := map[string]string{
		"version":            c.Version,
		"routes.home":        c.Routes.Home,
		"routes.adminLogin":  c.Routes.AdminLogin,
		"routes.adminArea":   c.Routes.AdminArea,
		"routes.reservation": c.Routes.Reservation,
		"routes.startParam":  c.Routes.StartParam,
		"routes.endParam":    c.Routes.EndParam,
		"routes.report":      c.Routes.Report,
		"home.adminLink":     c.Home.AdminLink,
		"home.frontLink":     c.Home.FrontLink,
		"home.roomAction":    c.Home.RoomAction,
		"login.username":     c.Login.Username,
		"login.password":     c.Login.Password,
		"login.submit":       c.Login.Submit,
		"login.error":        c.Login.Error,
		"room.heading":       c.Room.Heading,
		"room.reserve":       c.Room.Reserve,
		"room.submit":        c.Room.Submit,
		"report.event":       c.Report.Event,
		"report.logout":      c.Report.Logout,
	}
	var missing []string
	for name, val := range required {
		if strings.TrimSpace(val) == "" {
			missing = append(missing, name)
		}
	}
	if len(c.Room.Fields) == 0 {
		missing = append(missing, "room.fields")
	}
	seen := map[string]bool{}
	for i, f := range c.Room.Fields {
		if f.Name == "" || f.Selector == "" {
			missing = append(missing, fmt.Sprintf("room.fields[%d]", i))
		}
		if seen[f.Name] {
			return fmt.Errorf("contract %q: room field %q is mapped twice", c.Version, f.Name)
		}
		seen[f.Name] = true
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("contract %q is missing %s", c.Version, strings.Join(missing, ", "))
	}

	if !strings.Contains(c.Routes.Reservation, "{roomId}") {
		return fmt.Errorf("contract %q: reservation route has no {roomId} placeholder", c.Version)
	}
	if strings.Count(c.Home.RoomAction, "%d") != 1 {
		return fmt.Errorf("contract %q: home.roomAction must contain exactly one %%d", c.Version)
	}
	return nil
}

// Contracts lists the embedded contract versions.
func Contracts() []string {
	entries, _ := contractFS.ReadDir("contracts")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	return names
}

// LoadContract returns an embedded contract by version. An empty name means DefaultContract.
func LoadContract(name string) (*Contract, error) {
	if name == "" {
		name = DefaultContract
	}
	buf, err := contractFS.ReadFile("contracts/" + name + ".yaml")
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("unknown contract %q (have %s)", name, strings.Join(Contracts(), ", "))
	}
	if err != nil {
		return nil, err
	}
	return ParseContract(buf)
}

// LoadContractFile reads a contract from a YAML or JSON file.
func LoadContractFile(path string) (*Contract, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := ParseContract(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// ParseContract decodes and validates a contract. JSON input is accepted since it is valid YAML.
// Unknown keys are rejected so a misspelled selector name fails loudly.
func ParseContract(buf []byte) (*Contract, error) {
	dec := yaml.NewDecoder(bytes.NewReader(buf))
	dec.KnownFields(true)

	c := &Contract{}
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("decoding contract: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Marshal renders the contract as YAML.
func (c *Contract) Marshal() ([]byte, error) { return yaml.Marshal(c) }
