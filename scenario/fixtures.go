package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/TheLab-ms/innkeeper/pages"
)

// LoadPayload reads a booking payload: a JSON object of form field names to string values.
// The guest's first_name and last_name are required since the report is searched by them.
func LoadPayload(path string) (*pages.Payload, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, &FixtureError{Path: path, Err: err}
	}
	p, err := pages.ParsePayload(buf)
	if err != nil {
		return nil, &FixtureError{Path: path, Err: err}
	}
	if p.Len() == 0 {
		return nil, &FixtureError{Path: path, Err: errors.New("payload is empty")}
	}
	for _, key := range []string{"first_name", "last_name"} {
		if p.Value(key) == "" {
			return nil, &FixtureError{Path: path, Err: fmt.Errorf("payload has no %s", key)}
		}
	}
	return p, nil
}

type invalidPasswords struct {
	InvalidPasswords []string `json:"invalidPasswords"`
}

// LoadCredentials reads the sweep's password list and pairs it with username.
func LoadCredentials(path, username string) (Credentials, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, &FixtureError{Path: path, Err: err}
	}
	var f invalidPasswords
	if err := json.Unmarshal(buf, &f); err != nil {
		return Credentials{}, &FixtureError{Path: path, Err: err}
	}
	if len(f.InvalidPasswords) == 0 {
		return Credentials{}, &FixtureError{Path: path, Err: errors.New("invalidPasswords is empty")}
	}
	return Credentials{Username: username, Passwords: f.InvalidPasswords}, nil
}
