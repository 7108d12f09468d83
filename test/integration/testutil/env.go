//go:build integration

package testutil

import (
	"os"
	"testing"
)

type TestEnv struct {
	MongoURI     string
	DatabaseName string
	LoansURL     string
	DevicesURL   string
	EventKey     string
}

func NewTestEnv() *TestEnv {
	return &TestEnv{
		MongoURI:     getEnv("TEST_MONGO_URI", DefaultMongoURI),
		DatabaseName: getEnv("TEST_DB_NAME", DefaultDatabaseName),
		LoansURL:     getEnv("TEST_LOANS_URL", "http://localhost:8080"),
		DevicesURL:   getEnv("TEST_DEVICES_URL", "http://localhost:8081"),
		EventKey:     os.Getenv("TEST_EVENT_INGRESS_KEY"),
	}
}

// Setup cleans the database and waits for both services.
func (e *TestEnv) Setup(t *testing.T) (*MongoHelper, *Client, *Client) {
	t.Helper()

	mongo := NewMongoHelper(t, e.MongoURI, e.DatabaseName)
	mongo.CleanCollections(t, LoansCollection, SnapshotsCollection, DevicesCollection)

	loans := NewClient(e.LoansURL)
	loans.WaitForHealthy(t, DefaultHealthCheckTimeout)
	devices := NewClient(e.DevicesURL)
	devices.WaitForHealthy(t, DefaultHealthCheckTimeout)

	return mongo, loans, devices
}

func (e *TestEnv) Cleanup(t *testing.T, mongo *MongoHelper) {
	t.Helper()

	if mongo != nil {
		mongo.CleanCollections(t, LoansCollection, SnapshotsCollection, DevicesCollection)
		mongo.Close(t)
	}
}

// EventHeaders carries the ingress key when the loans service requires one.
func (e *TestEnv) EventHeaders() map[string]string {
	if e.EventKey == "" {
		return nil
	}
	return map[string]string{"X-Event-Key": e.EventKey}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

const (
	DefaultHealthCheckTimeout = 3 * ConnectionTimeout
)
