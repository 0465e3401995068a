package scenario

import (
	"errors"
	"fmt"
	"slices"

	"github.com/TheLab-ms/innkeeper/settings"
)

// Names lists every scenario a suite can contain.
var Names = []string{ReservationName, SweepName}

// Suite builds the scenarios whose fixtures are configured, restricted to only when it is non-empty.
// Fixtures are loaded here so that a bad file fails the run before any browser opens.
func Suite(s *settings.Settings, only ...string) ([]Scenario, error) {
	for _, name := range only {
		if !slices.Contains(Names, name) {
			return nil, &settings.ConfigurationError{Field: "scenario", Err: fmt.Errorf("unknown scenario %q", name)}
		}
	}
	wanted := func(name string) bool { return len(only) == 0 || slices.Contains(only, name) }

	var scenarios []Scenario
	if wanted(ReservationName) && s.Fixtures.Payload != "" {
		payload, err := LoadPayload(s.Fixtures.Payload)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, Reservation(payload))
	}
	if wanted(SweepName) && s.Fixtures.InvalidPasswords != "" {
		creds, err := LoadCredentials(s.Fixtures.InvalidPasswords, s.SweepUsername())
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, InvalidLoginSweep(creds))
	}
	if len(scenarios) == 0 {
		return nil, &settings.ConfigurationError{Field: "fixtures", Err: errors.New("no scenario has its fixture configured")}
	}
	return scenarios, nil
}
