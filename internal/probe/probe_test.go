package probe

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	t.Run("deadline exceeded is a timeout", func(t *testing.T) {
		perr := Classify(context.DeadlineExceeded)
		assert.Equal(t, KindTimeout, perr.Kind)
	})

	t.Run("net timeout is a timeout", func(t *testing.T) {
		var err net.Error = timeoutErr{}
		perr := Classify(err)
		assert.Equal(t, KindTimeout, perr.Kind)
	})

	t.Run("net error is connectivity", func(t *testing.T) {
		err := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
		perr := Classify(err)
		assert.Equal(t, KindConnectivity, perr.Kind)
	})

	t.Run("anything else is a query error", func(t *testing.T) {
		perr := Classify(errors.New(`relation "archives" does not exist`))
		assert.Equal(t, KindQuery, perr.Kind)
	})

	t.Run("wraps the cause", func(t *testing.T) {
		cause := errors.New("boom")
		perr := Classify(cause)
		assert.ErrorIs(t, perr, cause)
		assert.Contains(t, perr.Error(), "probe:")
		assert.Contains(t, perr.Error(), "boom")
	})
}

func TestPostgresConfig_ApplyDefaults(t *testing.T) {
	cfg := PostgresConfig{Endpoint: "localhost", Database: "cloud_storage"}
	cfg.ApplyDefaults()
	assert.Equal(t, "archives", cfg.Table)
	assert.Equal(t, "disable", cfg.SSLMode)
	require.NotZero(t, cfg.QueryTimeout)
}

func TestPostgresConfig_DSN(t *testing.T) {
	t.Run("endpoint with port", func(t *testing.T) {
		cfg := PostgresConfig{
			Endpoint: "db.internal:6432",
			Database: "cloud_storage",
			User:     "monitor",
			Password: "secret",
			SSLMode:  "require",
		}
		dsn := cfg.DSN()
		assert.Contains(t, dsn, "host=db.internal")
		assert.Contains(t, dsn, "port=6432")
		assert.Contains(t, dsn, "dbname=cloud_storage")
		assert.Contains(t, dsn, "sslmode=require")
	})

	t.Run("bare host defaults the port", func(t *testing.T) {
		cfg := PostgresConfig{Endpoint: "localhost", Database: "cloud_storage"}
		dsn := cfg.DSN()
		assert.Contains(t, dsn, "host=localhost")
		assert.Contains(t, dsn, "port=5432")
	})
}
