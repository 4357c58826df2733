//go:build integration

package integration

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bissquit/incident-escalator/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noEmailWindow is how long tests wait to confirm that nothing was sent.
const noEmailWindow = 3 * time.Second

func TestEscalation_OverdueIncidentSendsOneEmail(t *testing.T) {
	client := newTestClient(t)
	email := testutil.RandomEmail("overdue")

	created := createTestIncident(t, client, "Payment API down", email,
		withSLA(1), withLog("upstream timeout"))
	deleteIncidentCleanup(t, created.ID)

	messages, err := mailpitClient.WaitForRecipient(email, 1, 15*time.Second)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	msg, err := mailpitClient.GetMessageByID(messages[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Overdue Incident Notification", msg.Subject)
	assert.Equal(t, "escalator@example.com", msg.From.Address)

	var recipients []string
	for _, addr := range msg.AllRecipients() {
		recipients = append(recipients, addr.Address)
	}
	assert.Equal(t, []string{email}, recipients)

	assert.Contains(t, msg.Text, created.ID)
	assert.Contains(t, msg.Text, "Payment API down")
	assert.Contains(t, msg.Text, "upstream timeout")
	assert.Contains(t, msg.Text, "Status: Open")

	require.Eventually(t, func() bool {
		return storedNotified(t, created.ID)
	}, 5*time.Second, 100*time.Millisecond)

	got := getIncident(t, client, created.ID)
	assert.True(t, got.Notified)
	assert.Equal(t, "open", got.Status)

	// A second email never follows.
	time.Sleep(noEmailWindow)
	messages, err = mailpitClient.SearchByRecipient(email)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestEscalation_NotSentBeforeDeadline(t *testing.T) {
	client := newTestClient(t)
	email := testutil.RandomEmail("early")

	created := createTestIncident(t, client, "Slow queue", email, withSLA(4))
	deleteIncidentCleanup(t, created.ID)

	time.Sleep(2 * time.Second)
	messages, err := mailpitClient.SearchByRecipient(email)
	require.NoError(t, err)
	assert.Empty(t, messages)
	assert.False(t, storedNotified(t, created.ID))

	messages, err = mailpitClient.WaitForRecipient(email, 1, 15*time.Second)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestEscalation_ZeroSLASendsImmediately(t *testing.T) {
	client := newTestClient(t)
	email := testutil.RandomEmail("zero")

	created := createTestIncident(t, client, "Total outage", email, withSLA(0))
	deleteIncidentCleanup(t, created.ID)

	messages, err := mailpitClient.WaitForRecipient(email, 1, 10*time.Second)
	require.NoError(t, err)
	assert.Len(t, messages, 1)

	msg, err := mailpitClient.GetMessageByID(messages[0].ID)
	require.NoError(t, err)
	assert.Contains(t, msg.Text, "Log: N/A")
}

func TestEscalation_ResolvedBeforeDeadlineSendsNothing(t *testing.T) {
	client := newTestClient(t)
	email := testutil.RandomEmail("resolved")

	created := createTestIncident(t, client, "Flaky check", email, withSLA(2))
	deleteIncidentCleanup(t, created.ID)

	resp, err := client.POST("/api/v1/incidents/"+created.ID+"/resolve", map[string]string{"solution": "false alarm"})
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	time.Sleep(2*time.Second + noEmailWindow)

	messages, err := mailpitClient.SearchByRecipient(email)
	require.NoError(t, err)
	assert.Empty(t, messages)
	assert.False(t, storedNotified(t, created.ID))
}

func TestEscalation_DeletedBeforeDeadlineSendsNothing(t *testing.T) {
	client := newTestClient(t)
	email := testutil.RandomEmail("deleted")

	created := createTestIncident(t, client, "Noise", email, withSLA(2))

	resp, err := client.DELETE("/api/v1/incidents/" + created.ID)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	time.Sleep(2*time.Second + noEmailWindow)

	messages, err := mailpitClient.SearchByRecipient(email)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestEscalation_ResolvingAfterNotificationKeepsFlag(t *testing.T) {
	client := newTestClient(t)
	email := testutil.RandomEmail("late")

	created := createTestIncident(t, client, "Late fix", email, withSLA(0))
	deleteIncidentCleanup(t, created.ID)

	_, err := mailpitClient.WaitForRecipient(email, 1, 10*time.Second)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return storedNotified(t, created.ID)
	}, 5*time.Second, 100*time.Millisecond)

	resp, err := client.POST("/api/v1/incidents/"+created.ID+"/resolve", map[string]string{"solution": "patched"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resolved := testutil.DecodeData[incidentData](t, resp)
	assert.Equal(t, "resolved", resolved.Status)
	assert.True(t, resolved.Notified)
}

func TestEscalation_ManyIncidentsEachNotifiedOnce(t *testing.T) {
	client := newTestClient(t)

	const n = 6
	emails := make([]string, n)
	for i := range emails {
		emails[i] = testutil.RandomEmail("batch")
		created := createTestIncident(t, client, "Batch "+strings.Repeat("x", i+1), emails[i], withSLA(1))
		deleteIncidentCleanup(t, created.ID)
	}

	for _, email := range emails {
		messages, err := mailpitClient.WaitForRecipient(email, 1, 20*time.Second)
		require.NoError(t, err)
		assert.Len(t, messages, 1, email)
	}
}
