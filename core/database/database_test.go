package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnect(t *testing.T) {
	t.Run("Invalid Connection", func(t *testing.T) {
		cfg := Config{
			Host:           "localhost",
			Port:           9999, // Unused port
			User:           "root",
			Password:       "wrongpassword",
			Name:           "bulksync",
			Driver:         "mysql",
			TimeoutSeconds: 1,
		}

		// Connect should fail (timeout or refused)
		db, err := Connect(cfg)
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("Unsupported Driver", func(t *testing.T) {
		db, err := Connect(Config{Driver: "oracle"})
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("In Memory SQLite", func(t *testing.T) {
		db, err := Connect(Config{Driver: "sqlite", Name: ":memory:"})
		assert.NoError(t, err)
		assert.NotNil(t, db)
		assert.Equal(t, "sqlite", db.Dialector.Name())
	})
}

// TestDialector tests driver selection for each supported engine.
func TestDialector(t *testing.T) {
	tests := []struct {
		driver string
		name   string
	}{
		{"mysql", "mysql"},
		{"", "mysql"},
		{"postgres", "postgres"},
		{"sqlserver", "sqlserver"},
		{"sqlite", "sqlite"},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d, err := Dialector(Config{Driver: tt.driver, Host: "db", User: "sa", Password: "p@ss:word", Name: "bulk"}, 5)
			assert.NoError(t, err)
			assert.Equal(t, tt.name, d.Name())
		})
	}
}

// TestConfig_DefaultPort tests the per driver port fallback.
func TestConfig_DefaultPort(t *testing.T) {
	assert.Equal(t, 5432, Config{Driver: "postgres"}.DefaultPort())
	assert.Equal(t, 1433, Config{Driver: "sqlserver"}.DefaultPort())
	assert.Equal(t, 3306, Config{Driver: "mysql"}.DefaultPort())
	assert.Equal(t, 3307, Config{Driver: "mysql", Port: 3307}.DefaultPort())
}
