package utils

import (
	"context"
	"testing"
	"time"
)

func TestPostgresPoolConfig_Defaults(t *testing.T) {
	got := PostgresPoolConfig{}.withDefaults()
	if got.MaxOpenConns != 10 || got.MaxIdleConns != 5 {
		t.Fatalf("unexpected conn defaults: %+v", got)
	}
	if got.PingTimeout != 5*time.Second {
		t.Fatalf("unexpected ping timeout: %v", got.PingTimeout)
	}

	custom := PostgresPoolConfig{MaxOpenConns: 4, MaxIdleConns: 9, PingTimeout: time.Second}.withDefaults()
	if custom.MaxOpenConns != 4 || custom.PingTimeout != time.Second {
		t.Fatalf("explicit values must survive defaults: %+v", custom)
	}
	if custom.MaxIdleConns != 2 {
		t.Fatalf("idle conns must not exceed open conns: %+v", custom)
	}

	single := PostgresPoolConfig{MaxOpenConns: 1}.withDefaults()
	if single.MaxIdleConns != 1 {
		t.Fatalf("expected one idle conn, got %d", single.MaxIdleConns)
	}
}

func TestOpenPostgres_UnknownDriver(t *testing.T) {
	if _, err := OpenPostgres(context.Background(), "no-such-driver", "dsn", PostgresPoolConfig{}); err == nil {
		t.Fatalf("expected error for unregistered driver")
	}
}

func TestHealthCheck_NilDB(t *testing.T) {
	if err := HealthCheck(context.Background(), nil, time.Second); err == nil {
		t.Fatalf("expected error for nil db")
	}
}
