package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asergian/beacon-sub001/config"
)

type recordingPool struct {
	idle, open int
	lifetime   time.Duration
}

func (p *recordingPool) SetMaxIdleConns(n int)              { p.idle = n }
func (p *recordingPool) SetMaxOpenConns(n int)              { p.open = n }
func (p *recordingPool) SetConnMaxLifetime(d time.Duration) { p.lifetime = d }

func TestConfigurePool_Defaults(t *testing.T) {
	p := &recordingPool{}
	ConfigurePool(p, &config.DatabaseConfig{})

	assert.Equal(t, 10, p.idle)
	assert.Equal(t, 100, p.open)
	assert.Equal(t, time.Hour, p.lifetime)
}

func TestConfigurePool_Configured(t *testing.T) {
	p := &recordingPool{}
	ConfigurePool(p, &config.DatabaseConfig{MaxIdleConn: 2, MaxConn: 8, ConnMaxLifetime: 15})

	assert.Equal(t, 2, p.idle)
	assert.Equal(t, 8, p.open)
	assert.Equal(t, 15*time.Minute, p.lifetime)
}

func TestValidateConfig(t *testing.T) {
	valid := config.DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "beacon", SSLMode: "disable"}
	require.NoError(t, validateConfig(&valid))

	missingHost := valid
	missingHost.Host = ""
	assert.EqualError(t, validateConfig(&missingHost), "database host config is empty")

	missingPassword := valid
	missingPassword.Password = ""
	assert.EqualError(t, validateConfig(&missingPassword), "database password config is empty")

	assert.Error(t, validateConfig(nil))
}

func TestInitDatabase_Disabled(t *testing.T) {
	db, err := InitDatabase(&config.DatabaseConfig{})
	require.NoError(t, err)
	assert.Nil(t, db)
}

func TestNewConnection_InvalidPort(t *testing.T) {
	_, err := NewConnection(&config.DatabaseConfig{Host: "db", Port: "abc", User: "u", Password: "p", DBName: "beacon", SSLMode: "disable"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port number")
}
