//go:build integration

package devices

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusloans/pkg/auth"
	"campusloans/pkg/model"
	"campusloans/test/integration/testutil"
)

func TestDevices_CRUD(t *testing.T) {
	env := testutil.NewTestEnv()
	mongo, _, client := env.Setup(t)
	defer env.Cleanup(t, mongo)

	admin := client.As("admin", auth.PermDevicesWrite)

	resp := admin.POST(t, "/api/v1/devices", testutil.NewDeviceBuilder().WithCounts(3, 5).Build())
	testutil.AssertStatusCode(t, resp, http.StatusCreated)

	var created model.Device
	require.NoError(t, resp.DecodeData(&created))
	require.NotEmpty(t, created.ID)
	assert.Equal(t, int64(1), mongo.CountDocuments(t, testutil.DevicesCollection, nil))

	resp = client.GET(t, "/api/v1/devices/id/"+created.ID)
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	available := 4
	resp = admin.PATCH(t, "/api/v1/devices/id/"+created.ID, model.DeviceUpdate{AvailableCount: &available})
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	var updated model.Device
	require.NoError(t, resp.DecodeData(&updated))
	assert.Equal(t, 4, updated.AvailableCount)

	resp = client.GET(t, "/api/v1/devices/snapshot")
	testutil.AssertStatusCode(t, resp, http.StatusOK)

	resp = admin.DELETE(t, "/api/v1/devices/id/"+created.ID)
	testutil.AssertStatusCode(t, resp, http.StatusNoContent)
	assert.Zero(t, mongo.CountDocuments(t, testutil.DevicesCollection, nil))
}

func TestDevices_WriteRequiresPermission(t *testing.T) {
	env := testutil.NewTestEnv()
	mongo, _, client := env.Setup(t)
	defer env.Cleanup(t, mongo)

	resp := client.As("student").POST(t, "/api/v1/devices", testutil.NewDeviceBuilder().Build())
	testutil.AssertStatusCode(t, resp, http.StatusForbidden)
}

func TestDevices_AvailableAboveMaxRejected(t *testing.T) {
	env := testutil.NewTestEnv()
	mongo, _, client := env.Setup(t)
	defer env.Cleanup(t, mongo)

	resp := client.As("admin", auth.PermDevicesWrite).POST(t, "/api/v1/devices", testutil.NewDeviceBuilder().WithCounts(6, 5).Build())
	testutil.AssertStatusCode(t, resp, http.StatusUnprocessableEntity)
}
