package flagx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{"separate value", []string{"-c", "conf.json", "-a", ":8080"}, []string{"-c"}, []string{"-c", "conf.json"}},
		{"equals form", []string{"--config=alt.json", "-a", ":8080"}, []string{"--config"}, []string{"--config=alt.json"}},
		{"unknown flags ignored", []string{"-x", "1", "--y=2", "positional"}, []string{"-c"}, []string{}},
		{"flag at end without value", []string{"-c"}, []string{"-c"}, []string{"-c"}},
		{"next dash token is not a value", []string{"-c", "-d", "dsn"}, []string{"-c"}, []string{"-c"}},
		{"equals value may start with dash", []string{"--config=--weird.json"}, []string{"--config"}, []string{"--config=--weird.json"}},
		{"order preserved", []string{"-a", ":8080", "-k", "key", "-s", "secret"}, []string{"-s", "-a"}, []string{"-a", ":8080", "-s", "secret"}},
		{"repeated flag kept", []string{"-c", "one.json", "-c", "two.json"}, []string{"-c"}, []string{"-c", "one.json", "-c", "two.json"}},
		{"empty", []string{}, []string{"-c"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowed))
		})
	}
}

func TestConfigFileFlag(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	t.Run("short", func(t *testing.T) {
		os.Args = []string{"loadgate", "-c", "/etc/loadgate.json", "-a", ":9000"}
		assert.Equal(t, "/etc/loadgate.json", ConfigFileFlag())
	})

	t.Run("long", func(t *testing.T) {
		os.Args = []string{"loadgate", "-config", "/etc/long.json"}
		assert.Equal(t, "/etc/long.json", ConfigFileFlag())
	})

	t.Run("absent", func(t *testing.T) {
		os.Args = []string{"loadgate", "-a", ":9000"}
		assert.Empty(t, ConfigFileFlag())
	})

	t.Run("last wins", func(t *testing.T) {
		os.Args = []string{"loadgate", "-c", "/1.json", "-config", "/2.json"}
		assert.Equal(t, "/2.json", ConfigFileFlag())
	})
}
