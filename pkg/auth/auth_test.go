package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"campusloans/pkg/logger"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
)

func TestFromRequest_ParsesPermissions(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderUserID, " user-1 ")
	r.Header.Set(HeaderPermissions, "loans:read, loans:manage,,")

	id := FromRequest(r)

	assert.Equal(t, "user-1", id.UserID)
	assert.Equal(t, []string{PermLoansRead, PermLoansManage}, id.Permissions)
	assert.True(t, id.IsStaff())
	assert.False(t, id.Has(PermDevicesWrite))
}

func TestRequire(t *testing.T) {
	log := logger.Discard()
	called := false
	h := Require(log, PermLoansCancel, func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	})

	router := httprouter.New()
	router.POST("/x", h)
	server := Middleware(router)

	tests := []struct {
		name        string
		userID      string
		permissions string
		wantStatus  int
		wantCalled  bool
	}{
		{"no identity", "", "", http.StatusUnauthorized, false},
		{"missing permission", "u1", PermLoansRead, http.StatusForbidden, false},
		{"allowed", "u1", PermLoansCancel, http.StatusNoContent, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called = false
			r := httptest.NewRequest(http.MethodPost, "/x", nil)
			if tt.userID != "" {
				r.Header.Set(HeaderUserID, tt.userID)
			}
			r.Header.Set(HeaderPermissions, tt.permissions)
			w := httptest.NewRecorder()

			server.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCalled, called)
		})
	}
}
