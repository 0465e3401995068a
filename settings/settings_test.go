package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeSettings(t, `{
		"BaseUrl": "http://localhost:3000/",
		"headless": false,
		"auth": {"username": "admin", "password": "password"},
		"timeouts": {"element": "750ms"},
		"fixtures": {"payload": "payload.json", "invalidPasswords": "/abs/passwords.json"}
	}`)

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000/", s.BaseURL)
	assert.False(t, s.Headless)
	assert.Equal(t, "admin", s.Auth.Username)
	assert.Equal(t, "password", s.Auth.Password)
	assert.Equal(t, 750*time.Millisecond, s.Timeouts.Element.Std())
	assert.Equal(t, 5*time.Second, s.Timeouts.URL.Std(), "defaults survive partial objects")
	assert.Equal(t, 2*time.Minute, s.Timeouts.Scenario.Std())
	assert.Equal(t, "playwright", s.Engine)
	assert.Equal(t, "booker-v2", s.Contract)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "payload.json"), s.Fixtures.Payload)
	assert.Equal(t, "/abs/passwords.json", s.Fixtures.InvalidPasswords)
	assert.Equal(t, "admin", s.SweepUsername())
	assert.Equal(t, 30*time.Second, s.BrowserOptions().Timeout)
}

func TestLoadCaseInsensitiveKeys(t *testing.T) {
	for _, key := range []string{"baseURL", "BaseUrl", "baseurl", "BASEURL"} {
		s, err := Load(writeSettings(t, `{"`+key+`": "http://example.test"}`))
		require.NoError(t, err, key)
		assert.Equal(t, "http://example.test", s.BaseURL, key)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeSettings(t, `{
		"baseURL": "http://file.test",
		"auth": {"username": "admin", "password": "from-file"},
		"sweep": {"expectedError": "Nope"}
	}`)
	t.Setenv("INNKEEPER_AUTH_PASSWORD", "from-env")
	t.Setenv("INNKEEPER_TIMEOUT_SCENARIO", "45s")
	t.Setenv("INNKEEPER_ENGINE", "static")
	t.Setenv("INNKEEPER_SWEEP_ATTEMPTS_PER_SECOND", "2.5")
	t.Setenv("INNKEEPER_ROD_CONTROL_URL", "ws://127.0.0.1:9222/devtools/browser/abc")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", s.Auth.Password)
	assert.Equal(t, "admin", s.Auth.Username, "unset variables do not clobber file values")
	assert.Equal(t, "http://file.test", s.BaseURL)
	assert.Equal(t, "Nope", s.Sweep.ExpectedError)
	assert.Equal(t, 45*time.Second, s.Timeouts.Scenario.Std())
	assert.Equal(t, "static", s.Engine)
	assert.Equal(t, 2.5, s.Sweep.AttemptsPerSecond)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", s.RodControlURL)
}

func TestLoadEnvSuppliesBaseURL(t *testing.T) {
	t.Setenv("INNKEEPER_BASE_URL", "http://env.test")
	s, err := Load(writeSettings(t, `{}`))
	require.NoError(t, err)
	assert.Equal(t, "http://env.test", s.BaseURL)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "missing base url", body: `{"headless": true}`, field: "baseURL"},
		{name: "empty base url", body: `{"baseURL": ""}`, field: "baseURL"},
		{name: "relative base url", body: `{"baseURL": "/booking"}`, field: "baseURL"},
		{name: "unknown engine", body: `{"baseURL": "http://h", "engine": "lynx"}`, field: "engine"},
		{name: "zero timeout", body: `{"baseURL": "http://h", "timeouts": {"url": "0s"}}`, field: "timeouts.url"},
		{name: "room index", body: `{"baseURL": "http://h", "reservation": {"roomIndex": 0}}`, field: "reservation.roomIndex"},
		{name: "parallelism", body: `{"baseURL": "http://h", "parallelism": 0}`, field: "parallelism"},
		{name: "bad json", body: `{"baseURL": `},
		{name: "bad duration", body: `{"baseURL": "http://h", "timeouts": {"url": "soon"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeSettings(t, tt.body)
			_, err := Load(path)

			var ce *ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
			assert.Equal(t, path, ce.Path)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))

	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Std())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("90")))
}
