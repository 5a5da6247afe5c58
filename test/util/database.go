// Package util provides test utilities and helper functions for database testing.
package util

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Sopamo/taletwo/pkg/database"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	// Shared connection string for all tests in local dev
	sharedMongoURI string
	containerOnce  sync.Once
	containerErr   error
	skipReason     string
)

// SetupTestDatabase connects to a MongoDB suitable for tests and returns a
// client bound to a database unique to this test, so tests stay isolated and
// can run in parallel.
// - CI: connects to the external MongoDB service from CI_MONGO_URL
// - Local: uses a shared testcontainer (started once per package)
// The test database is dropped when the test completes. Tests are skipped
// when neither CI_MONGO_URL nor a working Docker daemon is available.
func SetupTestDatabase(t *testing.T) *database.Client {
	ctx := context.Background()

	uri := getOrCreateSharedMongo(t)
	dbName := GenerateDatabaseName(t)

	client, err := database.NewClient(ctx, database.Config{URL: uri, Database: dbName})
	require.NoError(t, err)
	t.Logf("Created test database: %s", dbName)

	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Database().Drop(cleanupCtx); err != nil {
			t.Logf("Warning: failed to drop database %s: %v", dbName, err)
		}
		_ = client.Close(cleanupCtx)
	})

	return client
}

// GetMongoURI returns the base MongoDB connection string. Used by tests that
// construct their own clients or need extra connection options.
func GetMongoURI(t *testing.T) string {
	return getOrCreateSharedMongo(t)
}

// getOrCreateSharedMongo returns a connection string to the shared MongoDB.
// In CI, uses CI_MONGO_URL. In local dev, starts a shared testcontainer once.
func getOrCreateSharedMongo(t *testing.T) string {
	if ciMongoURL := os.Getenv("CI_MONGO_URL"); ciMongoURL != "" {
		t.Log("Using external MongoDB from CI_MONGO_URL")
		return ciMongoURL
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		t.Log("Starting shared MongoDB testcontainer for all tests")

		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "mongo:7",
				ExposedPorts: []string{"27017/tcp"},
				WaitingFor:   wait.ForLog("Waiting for connections").WithStartupTimeout(60 * time.Second),
				Tmpfs:        map[string]string{"/data/db": "rw"},
			},
			Started: true,
		})
		if err != nil {
			// No Docker locally is an environment limitation, not a failure.
			skipReason = fmt.Sprintf("cannot start MongoDB container: %v", err)
			return
		}

		host, err := container.Host(ctx)
		if err != nil {
			containerErr = fmt.Errorf("failed to resolve container host: %w", err)
			return
		}
		port, err := container.MappedPort(ctx, "27017/tcp")
		if err != nil {
			containerErr = fmt.Errorf("failed to resolve mapped port: %w", err)
			return
		}

		sharedMongoURI = fmt.Sprintf("mongodb://%s:%s", host, port.Port())
		t.Logf("Shared container ready: %s", sharedMongoURI)
	})

	if skipReason != "" {
		t.Skip(skipReason)
	}
	require.NoError(t, containerErr, "Failed to setup shared test container")
	require.NotEmpty(t, sharedMongoURI)
	return sharedMongoURI
}

// GenerateDatabaseName creates a unique MongoDB database name for the test.
// Format: test_<sanitized_test_name>_<random_hex>, kept short so collection
// namespaces stay within Mongo's limits.
func GenerateDatabaseName(t *testing.T) string {
	testName := strings.ToLower(t.Name())
	testName = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, testName)

	if len(testName) > 40 {
		testName = testName[:40]
	}

	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		t.Fatalf("failed to generate random bytes for database name: %v", err)
	}

	return fmt.Sprintf("test_%s_%s", testName, hex.EncodeToString(randomBytes))
}
