// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// Package e2e runs the whole agent stack in-process: policy stores with
// SQLite persistence, mediator, event channel, audit consumer and the REST
// API on a real listener. Substrate tests (fanotify, BPF LSM) need root and
// are skipped otherwise.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wtalioy/EulerGuard/pkg/api"
	"github.com/wtalioy/EulerGuard/pkg/api/models"
	"github.com/wtalioy/EulerGuard/pkg/audit"
	"github.com/wtalioy/EulerGuard/pkg/events"
	"github.com/wtalioy/EulerGuard/pkg/lineage"
	"github.com/wtalioy/EulerGuard/pkg/mediator"
	"github.com/wtalioy/EulerGuard/pkg/metrics"
	"github.com/wtalioy/EulerGuard/pkg/pathres"
	"github.com/wtalioy/EulerGuard/pkg/policy"
	"github.com/wtalioy/EulerGuard/pkg/testutil"
)

// E2ETestEnv is a running agent stack.
type E2ETestEnv struct {
	T             *testing.T
	Paths         *policy.PathStore
	Ports         *policy.PortStore
	PolicyManager *policy.PolicyManager
	Storage       *policy.SQLiteStorage
	StoragePath   string
	Channel       *events.Channel
	Lineage       *lineage.Cache
	Mediator      *mediator.Mediator
	Audit         *audit.Consumer
	API           *api.Server
	HTTPClient    *http.Client
	APIBaseURL    string

	wg           sync.WaitGroup
	cleanupFuncs []func()
}

// NewE2ETestEnv starts a stack whose policy database lives in dbPath. An
// empty dbPath creates a fresh database in t.TempDir().
func NewE2ETestEnv(t *testing.T, dbPath string) (*E2ETestEnv, error) {
	env := &E2ETestEnv{
		T:          t,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	}

	if dbPath == "" {
		dbPath = filepath.Join(t.TempDir(), "policies.db")
	}
	env.StoragePath = dbPath

	storage, err := policy.NewSQLiteStorage(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}
	env.Storage = storage
	env.addCleanup(func() { storage.Close() })

	env.Paths = policy.NewPathStore(0)
	env.Ports = policy.NewPortStore(0)
	env.PolicyManager = policy.NewManagerWithStorage(env.Paths, env.Ports, storage)
	if err := env.PolicyManager.LoadPersisted(); err != nil {
		env.Cleanup()
		return nil, fmt.Errorf("failed to restore policies: %w", err)
	}

	env.Channel, err = events.NewChannel(64 * 1024)
	if err != nil {
		env.Cleanup()
		return nil, err
	}
	env.addCleanup(func() { env.Channel.Close() })

	env.Lineage, err = lineage.New(1024, 4)
	if err != nil {
		env.Cleanup()
		return nil, err
	}

	env.Mediator = mediator.New(mediator.Config{},
		policy.NewMatcher(env.Paths, env.Ports), env.Lineage, env.Channel)
	env.Audit = audit.NewConsumer(env.Channel, 256)

	ctx, cancel := context.WithCancel(context.Background())
	env.wg.Add(1)
	go func() {
		defer env.wg.Done()
		env.Audit.Run(ctx)
	}()
	env.addCleanup(func() {
		cancel()
		env.wg.Wait()
	})

	cfg := api.DefaultConfig()
	cfg.Port = 0
	env.API, err = api.NewAPIServer(cfg, api.Deps{
		Policies: env.PolicyManager,
		Mediator: env.Mediator,
		Channel:  env.Channel,
		Audit:    env.Audit,
		Lineage:  env.Lineage,
		Metrics: metrics.NewRegistry(metrics.Sources{
			Mediator: env.Mediator,
			Channel:  env.Channel,
			Audit:    env.Audit,
			Lineage:  env.Lineage,
			Policy:   env.PolicyManager,
		}),
	})
	if err != nil {
		env.Cleanup()
		return nil, fmt.Errorf("failed to create API server: %w", err)
	}
	if err := env.API.Start(); err != nil {
		env.Cleanup()
		return nil, fmt.Errorf("failed to start API server: %w", err)
	}
	env.addCleanup(func() { env.API.Stop() })
	env.APIBaseURL = "http://" + env.API.Addr().String()

	return env, nil
}

func (env *E2ETestEnv) addCleanup(fn func()) {
	env.cleanupFuncs = append(env.cleanupFuncs, fn)
}

// Cleanup releases everything in reverse order of creation.
func (env *E2ETestEnv) Cleanup() {
	for i := len(env.cleanupFuncs) - 1; i >= 0; i-- {
		env.cleanupFuncs[i]()
	}
	env.cleanupFuncs = nil
}

// Open runs the file-open hook for task on path.
func (env *E2ETestEnv) Open(task mediator.Task, path string) error {
	return env.Mediator.FileOpen(task, testutil.NewFakeFile(path, 0))
}

// Exec runs the exec hook for task on binary.
func (env *E2ETestEnv) Exec(task mediator.Task, binary string) error {
	return env.Mediator.Exec(task, pathres.NewPathDentry(binary))
}

// Connect runs the connect hook for task towards ip:port.
func (env *E2ETestEnv) Connect(task mediator.Task, ip string, port uint16) error {
	return env.Mediator.Connect(task, testutil.SockaddrInet4(ip, port))
}

// WaitForAudit polls the audit history until match accepts an entry.
func (env *E2ETestEnv) WaitForAudit(match func(audit.Entry) bool, timeout time.Duration) (audit.Entry, bool) {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		for _, e := range env.Audit.Recent(0) {
			if match(e) {
				return e, true
			}
		}
		time.Sleep(20 * time.Millisecond)
	}

	return audit.Entry{}, false
}

// DoHTTPRequest performs a request against the running API.
func (env *E2ETestEnv) DoHTTPRequest(method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, env.APIBaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return env.HTTPClient.Do(req)
}

// GetJSON performs a GET and decodes a 200 response into out.
func (env *E2ETestEnv) GetJSON(path string, out interface{}) {
	resp, err := env.DoHTTPRequest(http.MethodGet, path, nil)
	require.NoError(env.T, err)
	defer resp.Body.Close()

	require.Equal(env.T, http.StatusOK, resp.StatusCode, "GET %s", path)
	require.NoError(env.T, json.NewDecoder(resp.Body).Decode(out))
}

// CreatePathPolicyViaAPI sets a path policy through the REST API.
func (env *E2ETestEnv) CreatePathPolicyViaAPI(key, action string) error {
	return env.create("/api/v1/policies/paths", models.PathPolicyRequest{Key: key, Action: action})
}

// CreatePortPolicyViaAPI sets a port policy through the REST API.
func (env *E2ETestEnv) CreatePortPolicyViaAPI(port uint16, action string) error {
	return env.create("/api/v1/policies/ports", models.PortPolicyRequest{Port: port, Action: action})
}

func (env *E2ETestEnv) create(path string, req interface{}) error {
	resp, err := env.DoHTTPRequest(http.MethodPost, path, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		var errResp models.ErrorResponse
		json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, errResp.Message)
	}
	return nil
}

// AssertDenied asserts that err is the mediator's deny verdict.
func (env *E2ETestEnv) AssertDenied(err error, msgAndArgs ...interface{}) {
	require.Error(env.T, err, msgAndArgs...)
	require.True(env.T, testutil.IsPermissionDenied(err), msgAndArgs...)
}
