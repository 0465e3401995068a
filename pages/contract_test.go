package pages

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedContracts(t *testing.T) {
	assert.Equal(t, []string{"booker-v1", "booker-v2"}, Contracts())

	for _, name := range Contracts() {
		c, err := LoadContract(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Version)
	}

	v1, err := LoadContract("booker-v1")
	require.NoError(t, err)
	assert.Equal(t, "checkin", v1.Routes.StartParam)
	assert.Empty(t, v1.Room.Confirmation)

	v2, err := LoadContract("")
	require.NoError(t, err)
	assert.Equal(t, DefaultContract, v2.Version)
	assert.Equal(t, "/reservation/2?start=2030-01-01&end=2030-01-02", v2.Routes.ReservationPath("2", "2030-01-01", "2030-01-02"))
	assert.Equal(t, "/reservation/2?checkin=2030-01-01&checkout=2030-01-02", v1.Routes.ReservationPath("2", "2030-01-01", "2030-01-02"))
	assert.Equal(t, "/reservation/a%2Fb?start=x+y&end=z", v2.Routes.ReservationPath("a/b", "x y", "z"))

	sel, ok := v2.Room.Field("email")
	assert.True(t, ok)
	assert.Equal(t, "form.room-booking-form input[name='email']", sel)
	_, ok = v2.Room.Field("fax")
	assert.False(t, ok)

	_, err = LoadContract("booker-v9")
	assert.ErrorContains(t, err, "booker-v1, booker-v2")
}

func TestContractValidation(t *testing.T) {
	c, err := LoadContract(DefaultContract)
	require.NoError(t, err)
	c.Login.Submit = " "
	c.Report.Event = ""
	assert.EqualError(t, c.Validate(), `contract "booker-v2" is missing login.submit, report.event`)

	c, _ = LoadContract(DefaultContract)
	c.Home.RoomAction = "#rooms a"
	assert.ErrorContains(t, c.Validate(), "%d")

	c, _ = LoadContract(DefaultContract)
	c.Routes.Reservation = "/reservation"
	assert.ErrorContains(t, c.Validate(), "{roomId}")

	c, _ = LoadContract(DefaultContract)
	c.Room.Fields = append(c.Room.Fields, FormField{Name: "email", Selector: "#email"})
	assert.ErrorContains(t, c.Validate(), "mapped twice")

	c, _ = LoadContract(DefaultContract)
	c.Room.Fields = nil
	assert.ErrorContains(t, c.Validate(), "room.fields")
}

func TestLoadContractFile(t *testing.T) {
	v2, err := LoadContract(DefaultContract)
	require.NoError(t, err)
	v2.Version = "custom"
	v2.Login.Error = ".login-error"
	buf, err := v2.Marshal()
	require.NoError(t, err)

	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(yamlPath, buf, 0644))

	c, err := LoadContractFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "custom", c.Version)
	assert.Equal(t, ".login-error", c.Login.Error)
	assert.Equal(t, v2.Room.Fields, c.Room.Fields)

	jsonPath := filepath.Join(dir, "partial.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"version": "partial", "login": {"username": "#u"}}`), 0644))
	_, err = LoadContractFile(jsonPath)
	assert.ErrorContains(t, err, "routes.home")

	typoPath := filepath.Join(dir, "typo.yaml")
	require.NoError(t, os.WriteFile(typoPath, []byte("version: x\nlogin:\n  usrname: '#u'\n"), 0644))
	_, err = LoadContractFile(typoPath)
	assert.ErrorContains(t, err, "usrname")

	_, err = LoadContractFile(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
