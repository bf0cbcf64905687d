package factory

import (
	"testing"
)

func TestNewSinkFromDSNSQLite(t *testing.T) {
	sink, err := NewSinkFromDSN("sqlite://" + t.TempDir() + "/h.db")
	if err != nil {
		t.Fatalf("sqlite DSN: %v", err)
	}
	_ = sink.Close()
}

func TestNewSinkFromDSNPlainPath(t *testing.T) {
	sink, err := NewSinkFromDSN(t.TempDir() + "/plain.db")
	if err != nil {
		t.Fatalf("plain path DSN must default to sqlite: %v", err)
	}
	_ = sink.Close()
}

func TestNewSinkFromDSNErrors(t *testing.T) {
	if _, err := NewSinkFromDSN(""); err == nil {
		t.Errorf("empty DSN must error")
	}
	if _, err := NewSinkFromDSN("clickhouse://localhost:9000"); err == nil {
		t.Errorf("unsupported scheme must error")
	}
}
