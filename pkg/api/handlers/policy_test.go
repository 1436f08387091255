// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wtalioy/EulerGuard/pkg/api/models"
	"github.com/wtalioy/EulerGuard/pkg/policy"
)

// MockPolicyManager is a mock implementation of policy.Manager for testing
type MockPolicyManager struct {
	mock.Mock
}

func (m *MockPolicyManager) PutPath(key string, a policy.Action) error {
	return m.Called(key, a).Error(0)
}

func (m *MockPolicyManager) DeletePath(key string) error {
	return m.Called(key).Error(0)
}

func (m *MockPolicyManager) GetPath(key string) (policy.Action, error) {
	args := m.Called(key)
	return args.Get(0).(policy.Action), args.Error(1)
}

func (m *MockPolicyManager) ListPaths() []policy.PathEntry {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]policy.PathEntry)
}

func (m *MockPolicyManager) PutPort(port uint16, a policy.Action) error {
	return m.Called(port, a).Error(0)
}

func (m *MockPolicyManager) DeletePort(port uint16) error {
	return m.Called(port).Error(0)
}

func (m *MockPolicyManager) GetPort(port uint16) (policy.Action, error) {
	args := m.Called(port)
	return args.Get(0).(policy.Action), args.Error(1)
}

func (m *MockPolicyManager) ListPorts() []policy.PortEntry {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]policy.PortEntry)
}

func (m *MockPolicyManager) PathCount() int {
	return m.Called().Int(0)
}

func (m *MockPolicyManager) PortCount() int {
	return m.Called().Int(0)
}

func (m *MockPolicyManager) ReplaceRules(rules []policy.Rule) error {
	return m.Called(rules).Error(0)
}

var _ policy.Manager = (*MockPolicyManager)(nil)

// setupTestRouter creates a test router with the policy handler
func setupTestRouter(mockPM *MockPolicyManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	handler := NewPolicyHandler(mockPM)

	api := router.Group("/api/v1/policies")
	{
		api.GET("/paths", handler.ListPathPolicies)
		api.POST("/paths", handler.CreatePathPolicy)
		api.DELETE("/paths", handler.DeletePathPolicy)
		api.GET("/ports", handler.ListPortPolicies)
		api.POST("/ports", handler.CreatePortPolicy)
		api.GET("/ports/:port", handler.GetPortPolicy)
		api.DELETE("/ports/:port", handler.DeletePortPolicy)
	}

	return router
}

func doJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	switch b := body.(type) {
	case nil:
		buf = &bytes.Buffer{}
	case string:
		buf = bytes.NewBufferString(b)
	default:
		data, _ := json.Marshal(b)
		buf = bytes.NewBuffer(data)
	}

	req, _ := http.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var response models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

func TestCreatePathPolicy_Success(t *testing.T) {
	mockPM := new(MockPolicyManager)
	router := setupTestRouter(mockPM)

	mockPM.On("PutPath", "/etc/shadow", policy.ActionBlock).Return(nil)

	w := doJSON(router, http.MethodPost, "/api/v1/policies/paths",
		models.PathPolicyRequest{Key: "/etc/shadow", Action: "block"})

	assert.Equal(t, http.StatusCreated, w.Code)

	var response models.PathPolicyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "/etc/shadow", response.Key)
	assert.Equal(t, "block", response.Action)

	mockPM.AssertExpectations(t)
}

func TestCreatePathPolicy_ActionAlias(t *testing.T) {
	mockPM := new(MockPolicyManager)
	router := setupTestRouter(mockPM)

	mockPM.On("PutPath", "shadow", policy.ActionMonitor).Return(nil)

	w := doJSON(router, http.MethodPost, "/api/v1/policies/paths",
		models.PathPolicyRequest{Key: "shadow", Action: "alert"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"action":"monitor"`)
	mockPM.AssertExpectations(t)
}

func TestCreatePathPolicy_InvalidInput(t *testing.T) {
	testCases := []struct {
		name string
		body interface{}
	}{
		{"invalid json", "{invalid json"},
		{"missing key", map[string]interface{}{"action": "block"}},
		{"missing action", map[string]interface{}{"key": "/etc/shadow"}},
		{"unknown action", map[string]interface{}{"key": "/etc/shadow", "action": "allow"}},
		{"none action", map[string]interface{}{"key": "/etc/shadow", "action": "none"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockPM := new(MockPolicyManager)
			router := setupTestRouter(mockPM)

			w := doJSON(router, http.MethodPost, "/api/v1/policies/paths", tc.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			response := decodeError(t, w)
			assert.Equal(t, http.StatusBadRequest, response.Code)
			assert.Equal(t, "validation_error", response.Error)
			mockPM.AssertNotCalled(t, "PutPath", mock.Anything, mock.Anything)
		})
	}
}

func TestCreatePathPolicy_StoreErrors(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		wantCode int
		wantKind string
	}{
		{"key too long", fmt.Errorf("%w: 300 bytes", policy.ErrKeyTooLong), http.StatusBadRequest, "validation_error"},
		{"store full", policy.ErrStoreFull, http.StatusInsufficientStorage, "store_full"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "policy_error"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockPM := new(MockPolicyManager)
			router := setupTestRouter(mockPM)
			mockPM.On("PutPath", mock.Anything, policy.ActionBlock).Return(tc.err)

			w := doJSON(router, http.MethodPost, "/api/v1/policies/paths",
				models.PathPolicyRequest{Key: strings.Repeat("a", 10), Action: "block"})

			assert.Equal(t, tc.wantCode, w.Code)
			assert.Equal(t, tc.wantKind, decodeError(t, w).Error)
			mockPM.AssertExpectations(t)
		})
	}
}

func TestListPathPolicies(t *testing.T) {
	mockPM := new(MockPolicyManager)
	router := setupTestRouter(mockPM)

	mockPM.On("ListPaths").Return([]policy.PathEntry{
		{Key: "/etc/shadow", Action: policy.ActionBlock},
		{Key: "passwd", Action: policy.ActionMonitor},
	})

	w := doJSON(router, http.MethodGet, "/api/v1/policies/paths", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var response models.PathPolicyListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 2, response.Count)
	assert.Equal(t, "/etc/shadow", response.Policies[0].Key)
	assert.Equal(t, "block", response.Policies[0].Action)
	assert.Equal(t, "monitor", response.Policies[1].Action)
}

func TestListPathPolicies_Empty(t *testing.T) {
	mockPM := new(MockPolicyManager)
	router := setupTestRouter(mockPM)
	mockPM.On("ListPaths").Return(nil)

	w := doJSON(router, http.MethodGet, "/api/v1/policies/paths", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"policies":[],"count":0}`, w.Body.String())
}

func TestDeletePathPolicy(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mockPM := new(MockPolicyManager)
		router := setupTestRouter(mockPM)
		mockPM.On("DeletePath", "etc/shadow").Return(nil)

		w := doJSON(router, http.MethodDelete, "/api/v1/policies/paths?key=etc/shadow", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		mockPM.AssertExpectations(t)
	})

	t.Run("missing key", func(t *testing.T) {
		mockPM := new(MockPolicyManager)
		router := setupTestRouter(mockPM)

		w := doJSON(router, http.MethodDelete, "/api/v1/policies/paths", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		mockPM.AssertNotCalled(t, "DeletePath", mock.Anything)
	})

	t.Run("not found", func(t *testing.T) {
		mockPM := new(MockPolicyManager)
		router := setupTestRouter(mockPM)
		mockPM.On("DeletePath", "nope").Return(fmt.Errorf("%w: path %q", policy.ErrNotFound, "nope"))

		w := doJSON(router, http.MethodDelete, "/api/v1/policies/paths?key=nope", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "not_found", decodeError(t, w).Error)
	})
}

func TestCreatePortPolicy(t *testing.T) {
	mockPM := new(MockPolicyManager)
	router := setupTestRouter(mockPM)
	mockPM.On("PutPort", uint16(4444), policy.ActionBlock).Return(nil)

	w := doJSON(router, http.MethodPost, "/api/v1/policies/ports",
		models.PortPolicyRequest{Port: 4444, Action: "deny"})

	assert.Equal(t, http.StatusCreated, w.Code)
	var response models.PortPolicyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, uint16(4444), response.Port)
	assert.Equal(t, "block", response.Action)
	mockPM.AssertExpectations(t)
}

func TestCreatePortPolicy_InvalidInput(t *testing.T) {
	testCases := []struct {
		name string
		body interface{}
	}{
		{"port zero", map[string]interface{}{"port": 0, "action": "block"}},
		{"port out of range", map[string]interface{}{"port": 70000, "action": "block"}},
		{"negative port", map[string]interface{}{"port": -1, "action": "block"}},
		{"bad action", map[string]interface{}{"port": 80, "action": "drop"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockPM := new(MockPolicyManager)
			router := setupTestRouter(mockPM)

			w := doJSON(router, http.MethodPost, "/api/v1/policies/ports", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			mockPM.AssertNotCalled(t, "PutPort", mock.Anything, mock.Anything)
		})
	}
}

func TestGetPortPolicy(t *testing.T) {
	mockPM := new(MockPolicyManager)
	router := setupTestRouter(mockPM)
	mockPM.On("GetPort", uint16(23)).Return(policy.ActionMonitor, nil)
	mockPM.On("GetPort", uint16(24)).Return(policy.ActionNone, fmt.Errorf("%w: port 24", policy.ErrNotFound))

	w := doJSON(router, http.MethodGet, "/api/v1/policies/ports/23", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"port":23,"action":"monitor"}`, w.Body.String())

	w = doJSON(router, http.MethodGet, "/api/v1/policies/ports/24", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	for _, bad := range []string{"abc", "0", "65536", "-3"} {
		w = doJSON(router, http.MethodGet, "/api/v1/policies/ports/"+bad, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

func TestListAndDeletePortPolicies(t *testing.T) {
	mockPM := new(MockPolicyManager)
	router := setupTestRouter(mockPM)
	mockPM.On("ListPorts").Return([]policy.PortEntry{{Port: 22, Action: policy.ActionBlock}})
	mockPM.On("DeletePort", uint16(22)).Return(nil)

	w := doJSON(router, http.MethodGet, "/api/v1/policies/ports", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"policies":[{"port":22,"action":"block"}],"count":1}`, w.Body.String())

	w = doJSON(router, http.MethodDelete, "/api/v1/policies/ports/22", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	mockPM.AssertExpectations(t)
}
