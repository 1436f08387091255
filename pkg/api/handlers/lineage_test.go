// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtalioy/EulerGuard/pkg/api/models"
	"github.com/wtalioy/EulerGuard/pkg/audit"
	"github.com/wtalioy/EulerGuard/pkg/lineage"
)

func setupLineageTestRouter(t *testing.T) (*gin.Engine, *lineage.Cache) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cache, err := lineage.New(64, 4)
	require.NoError(t, err)

	router := gin.New()
	router.GET("/api/v1/lineage/:pid", NewLineageHandler(cache).GetLineage)
	return router, cache
}

func TestGetLineage(t *testing.T) {
	router, cache := setupLineageTestRouter(t)
	cache.Put(300, 200)
	cache.Put(200, 100)
	cache.Put(100, 1)

	w := doJSON(router, http.MethodGet, "/api/v1/lineage/300", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var response models.LineageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, uint32(300), response.PID)
	assert.Equal(t, uint32(200), response.PPID)
	assert.Equal(t, []uint32{200, 100, 1}, response.Ancestors)

	w = doJSON(router, http.MethodGet, "/api/v1/lineage/300?depth=1", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, []uint32{200}, response.Ancestors)
}

func TestGetLineage_Errors(t *testing.T) {
	router, _ := setupLineageTestRouter(t)

	testCases := []struct {
		path string
		code int
	}{
		{"/api/v1/lineage/abc", http.StatusBadRequest},
		{"/api/v1/lineage/0", http.StatusBadRequest},
		{"/api/v1/lineage/42?depth=0", http.StatusBadRequest},
		{"/api/v1/lineage/42?depth=1000", http.StatusBadRequest},
		{"/api/v1/lineage/42", http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			w := doJSON(router, http.MethodGet, tc.path, nil)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestListEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)
	al := &MockAuditLog{entries: []audit.Entry{
		{Type: "connect", Action: "block", PID: 3, Port: 4444},
		{Type: "file_open", Action: "monitor", PID: 2, Path: "/etc/passwd"},
		{Type: "exec", Action: "allow", PID: 1, Path: "/bin/ls"},
	}}

	router := gin.New()
	router.GET("/api/v1/events", NewEventsHandler(al).ListEvents)

	w := doJSON(router, http.MethodGet, "/api/v1/events", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var response models.EventListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 3, response.Count)
	assert.Equal(t, "connect", response.Events[0].Type)

	w = doJSON(router, http.MethodGet, "/api/v1/events?limit=2", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 2, response.Count)

	for _, bad := range []string{"0", "-1", "x"} {
		w = doJSON(router, http.MethodGet, "/api/v1/events?limit="+bad, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}
