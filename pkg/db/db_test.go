package db

import (
	"testing"

	"nexus/pkg/config"
)

func TestDSNEscapesCredentials(t *testing.T) {
	got := DSN(config.DBConfig{
		Host:     "db",
		Port:     5432,
		User:     "nexus",
		Password: "p@ss/word",
		Name:     "nexus",
	})
	want := "postgres://nexus:p%40ss%2Fword@db:5432/nexus?sslmode=disable"
	if got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}
