//go:build integration

package loans

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"campusloans/internal/loans/gateway"
	"campusloans/pkg/auth"
	"campusloans/pkg/model"
	"campusloans/test/integration/testutil"
)

const (
	catalogPath       = "/api/v1/events/catalog"
	reservationsPath  = "/api/v1/events/reservations"
	confirmationsPath = "/api/v1/events/confirmations"
)

func sendEvents(t *testing.T, env *testutil.TestEnv, client *testutil.Client, path string, events any) gateway.BatchResult {
	t.Helper()
	resp := client.POSTWithHeaders(t, path, events, env.EventHeaders())
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	var result gateway.BatchResult
	require.NoError(t, resp.DecodeJSON(&result))
	return result
}

func createLoan(t *testing.T, client *testutil.Client, deviceID string, expected int) model.LoanRecord {
	t.Helper()
	resp := client.POST(t, "/api/v1/loans", testutil.CreateLoan(deviceID))
	testutil.AssertStatusCode(t, resp, expected)

	var loan model.LoanRecord
	require.NoError(t, resp.DecodeData(&loan))
	return loan
}

func getLoan(t *testing.T, client *testutil.Client, id string) model.LoanRecord {
	t.Helper()
	resp := client.GET(t, "/api/v1/loans/id/"+id)
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	var loan model.LoanRecord
	require.NoError(t, resp.DecodeData(&loan))
	return loan
}

// ──────────────────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────────────────

func TestLoanLifecycle_AdmitWaitlistAndPromote(t *testing.T) {
	env := testutil.NewTestEnv()
	mongo, client, _ := env.Setup(t)
	defer env.Cleanup(t, mongo)

	deviceID := primitive.NewObjectID().Hex()
	alice := client.As("alice", auth.PermLoansCreate, auth.PermLoansRead, auth.PermLoansCancel)
	bob := client.As("bob", auth.PermLoansCreate, auth.PermLoansRead)
	staff := client.As("staff-1", auth.PermLoansManage, auth.PermLoansRead)

	result := sendEvents(t, env, client, catalogPath, testutil.DeviceEvent(model.EventDeviceCreated, deviceID, 1, 1))
	assert.Equal(t, 1, result.Processed)

	first := createLoan(t, alice, deviceID, http.StatusCreated)
	assert.Equal(t, model.LoanPending, first.Status)

	// The reservation service takes the last unit.
	sendEvents(t, env, client, catalogPath, testutil.DeviceEvent(model.EventDeviceUpdated, deviceID, 0, 1))

	second := createLoan(t, bob, deviceID, http.StatusAccepted)
	assert.Equal(t, model.LoanWaitlisted, second.Status)

	sendEvents(t, env, client, reservationsPath, testutil.ReservationEvent(model.EventReservationConfirmed, first, "res-alice"))
	sendEvents(t, env, client, confirmationsPath, testutil.ReservationEvent(model.EventDeviceCollected, first, "res-alice"))
	assert.Equal(t, model.LoanActive, getLoan(t, alice, first.ID).Status)

	sendEvents(t, env, client, confirmationsPath, testutil.ReservationEvent(model.EventDeviceReturned, first, "res-alice"))
	returned := getLoan(t, alice, first.ID)
	assert.Equal(t, model.LoanReturned, returned.Status)
	assert.NotNil(t, returned.ReturnedAt)

	sendEvents(t, env, client, catalogPath, testutil.DeviceEvent(model.EventDeviceUpdated, deviceID, 1, 1))

	resp := staff.POST(t, "/api/v1/devices/"+deviceID+"/waitlist/process", nil)
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	promoted := getLoan(t, bob, second.ID)
	assert.Equal(t, model.LoanPending, promoted.Status)
	assert.NotEmpty(t, promoted.ReservationID)

	assert.Equal(t, int64(1), mongo.CountDocuments(t, testutil.LoansCollection, bson.M{"status": string(model.LoanPending)}))
}

func TestCreateLoan_UnknownDevice(t *testing.T) {
	env := testutil.NewTestEnv()
	mongo, client, _ := env.Setup(t)
	defer env.Cleanup(t, mongo)

	resp := client.As("alice", auth.PermLoansCreate).POST(t, "/api/v1/loans", testutil.CreateLoan(primitive.NewObjectID().Hex()))

	testutil.AssertStatusCode(t, resp, http.StatusNotFound)
	assert.Equal(t, "DEVICE_NOT_FOUND", testutil.ErrorCode(t, resp))
	assert.Zero(t, mongo.CountDocuments(t, testutil.LoansCollection, nil))
}

func TestCreateLoan_RequiresIdentity(t *testing.T) {
	env := testutil.NewTestEnv()
	mongo, client, _ := env.Setup(t)
	defer env.Cleanup(t, mongo)

	resp := client.POST(t, "/api/v1/loans", testutil.CreateLoan(primitive.NewObjectID().Hex()))
	testutil.AssertStatusCode(t, resp, http.StatusUnauthorized)
}

func TestCancelLoan_OwnerOnly(t *testing.T) {
	env := testutil.NewTestEnv()
	mongo, client, _ := env.Setup(t)
	defer env.Cleanup(t, mongo)

	deviceID := primitive.NewObjectID().Hex()
	sendEvents(t, env, client, catalogPath, testutil.DeviceEvent(model.EventDeviceCreated, deviceID, 2, 2))

	alice := client.As("alice", auth.PermLoansCreate, auth.PermLoansRead, auth.PermLoansCancel)
	mallory := client.As("mallory", auth.PermLoansCancel)
	loan := createLoan(t, alice, deviceID, http.StatusCreated)

	resp := mallory.POST(t, "/api/v1/loans/id/"+loan.ID+"/cancel", nil)
	testutil.AssertStatusCode(t, resp, http.StatusForbidden)

	resp = alice.POST(t, "/api/v1/loans/id/"+loan.ID+"/cancel", model.CancelLoanRequest{Reason: "changed plans"})
	testutil.AssertStatusCode(t, resp, http.StatusOK)
	assert.Equal(t, model.LoanCancelled, getLoan(t, alice, loan.ID).Status)
}

// ──────────────────────────────────────────────────────────────
// Event ingress
// ──────────────────────────────────────────────────────────────

func TestEvents_RedeliveryIsDeduplicated(t *testing.T) {
	env := testutil.NewTestEnv()
	mongo, client, _ := env.Setup(t)
	defer env.Cleanup(t, mongo)

	events := testutil.DeviceEvent(model.EventDeviceCreated, primitive.NewObjectID().Hex(), 3, 3)

	first := sendEvents(t, env, client, catalogPath, events)
	second := sendEvents(t, env, client, catalogPath, events)

	assert.Equal(t, 1, first.Processed)
	assert.Equal(t, 1, second.Duplicates)
	assert.Equal(t, int64(1), mongo.CountDocuments(t, testutil.SnapshotsCollection, nil))
}

func TestEvents_SubscriptionHandshake(t *testing.T) {
	env := testutil.NewTestEnv()
	mongo, client, _ := env.Setup(t)
	defer env.Cleanup(t, mongo)

	handshake := []map[string]any{{
		"id":        "validation-1",
		"eventType": gateway.EventGridValidation,
		"data":      map[string]string{"validationCode": "abc-123"},
	}}

	resp := client.POSTWithHeaders(t, catalogPath, handshake, env.EventHeaders())
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	var body map[string]string
	require.NoError(t, resp.DecodeJSON(&body))
	assert.Equal(t, "abc-123", body["validationResponse"])
}

func TestEvents_MalformedBody(t *testing.T) {
	env := testutil.NewTestEnv()
	mongo, client, _ := env.Setup(t)
	defer env.Cleanup(t, mongo)

	resp := client.POSTWithHeaders(t, catalogPath, "not an event", env.EventHeaders())
	testutil.AssertStatusCode(t, resp, http.StatusBadRequest)
}
