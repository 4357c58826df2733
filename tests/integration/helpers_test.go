//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/bissquit/incident-escalator/internal/testutil"
	"github.com/stretchr/testify/require"
)

// incidentData mirrors the incident JSON returned by the API.
type incidentData struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Log         *string   `json:"log"`
	Email       string    `json:"email"`
	SLASeconds  float64   `json:"sla_seconds"`
	Status      string    `json:"status"`
	Solution    *string   `json:"solution"`
	Notified    bool      `json:"notified"`
	Deadline    time.Time `json:"deadline"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type incidentOption func(map[string]interface{})

func withSLA(seconds float64) incidentOption {
	return func(p map[string]interface{}) { p["sla_seconds"] = seconds }
}

func withLog(log string) incidentOption {
	return func(p map[string]interface{}) { p["log"] = log }
}

// createTestIncident reports an incident addressed to email and returns it.
// The default SLA is an hour so that no escalation fires during the test.
func createTestIncident(t *testing.T, client *testutil.Client, name, email string, opts ...incidentOption) incidentData {
	t.Helper()

	payload := map[string]interface{}{
		"name":        name,
		"description": name + " description",
		"email":       email,
		"sla_seconds": 3600,
	}
	for _, opt := range opts {
		opt(payload)
	}

	resp, err := client.POST("/api/v1/incidents", payload)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	return testutil.DecodeData[incidentData](t, resp)
}

// deleteIncidentCleanup registers deletion of an incident at test end.
// Already deleted incidents are ignored.
func deleteIncidentCleanup(t *testing.T, id string) {
	t.Helper()
	t.Cleanup(func() {
		resp, err := newTestClientWithoutValidation().DELETE("/api/v1/incidents/" + id)
		if err == nil {
			_ = resp.Body.Close()
		}
	})
}

func getIncident(t *testing.T, client *testutil.Client, id string) incidentData {
	t.Helper()

	resp, err := client.GET("/api/v1/incidents/" + id)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	return testutil.DecodeData[incidentData](t, resp)
}

// storedNotified reads the notified flag straight from the database.
func storedNotified(t *testing.T, id string) bool {
	t.Helper()

	var notified bool
	err := testDB.QueryRow(context.Background(),
		`SELECT notified FROM incidents WHERE id = $1`, id).Scan(&notified)
	require.NoError(t, err)
	return notified
}
