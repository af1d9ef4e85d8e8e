package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vnykmshr/detthrottle/internal/testutil"
	"github.com/vnykmshr/detthrottle/pkg/throttle"
	"github.com/vnykmshr/detthrottle/pkg/throttle/functionality"
)

func testOptions() *options {
	return &options{
		definitions: filepath.Join("testdata", "throttles.yaml"),
		properties:  filepath.Join("testdata", "properties.yaml"),
		mode:        "hapi",
		nodes:       1,
	}
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	testutil.AssertNoError(t, cmd.Execute())
	return out.String()
}

func TestSummaryCommand(t *testing.T) {
	out := run(t, "summary",
		"--definitions", filepath.Join("testdata", "throttles.yaml"),
		"--properties", filepath.Join("testdata", "properties.yaml"),
		"--nodes", "1")

	for _, want := range []string{
		"mode: HAPI, nodes: 1",
		"CryptoCreate: 1.000 tps (CreationLimits)",
		"CryptoTransfer: 2.000 tps (ThroughputLimits)",
		"gas: 1000000 gas/sec",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary output missing %q:\n%s", want, out)
		}
	}
}

func TestSummaryCommand_UnsatisfiableDefinitions(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"summary", "--definitions", filepath.Join("testdata", "throttles.yaml"), "--nodes", "5000"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "contains an unsatisfiable milliOpsPerSec with 5000 nodes") {
		t.Fatalf("Execute() error = %v, want unsatisfiable bucket", err)
	}
}

func TestReplayCommand(t *testing.T) {
	out := run(t, "replay",
		"--definitions", filepath.Join("testdata", "throttles.yaml"),
		"--properties", filepath.Join("testdata", "properties.yaml"),
		"--trace", filepath.Join("testdata", "trace.yaml"))

	lines := strings.Split(strings.TrimSpace(out), "\n")
	var outcomes []string
	for _, line := range lines {
		if line == "usage:" {
			break
		}
		switch {
		case strings.HasSuffix(line, "throttled (gas)"):
			outcomes = append(outcomes, "gas")
		case strings.HasSuffix(line, "throttled"):
			outcomes = append(outcomes, "throttled")
		case strings.HasSuffix(line, "admitted"):
			outcomes = append(outcomes, "admitted")
		}
	}
	want := []string{
		"admitted", "admitted", "throttled",
		"admitted", "throttled",
		"gas", "admitted",
		"throttled", "admitted",
	}
	if diff := cmp.Diff(want, outcomes); diff != "" {
		t.Errorf("replay outcomes mismatch (-want +got):\n%s\n%s", diff, out)
	}
	if !strings.Contains(out, "ThroughputLimits") || !strings.Contains(out, "100.000%") {
		t.Errorf("replay usage missing ThroughputLimits at 100%%:\n%s", out)
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	args := []string{"replay",
		"--definitions", filepath.Join("testdata", "throttles.yaml"),
		"--trace", filepath.Join("testdata", "trace.yaml"),
		"--mode", "consensus"}
	testutil.AssertEqual(t, run(t, args...), run(t, args...))
}

func TestLoadTrace(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "trace.json")
	testutil.AssertNoError(t, os.WriteFile(jsonPath, []byte(`{
		"start": "2025-06-01T00:00:00Z",
		"entries": [
			{"offset": "250ms", "txn": {"kind": "TokenMint", "mint": {"numSerials": 3}}},
			{"offset": "1s", "query": {"kind": "ContractCallLocal", "gas": 25000}}
		]
	}`), 0o600))

	tr, err := loadTrace(jsonPath)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, len(tr.Entries), 2)
	testutil.AssertEqual(t, tr.Entries[0].Txn.Kind, functionality.TokenMint)
	testutil.AssertEqual(t, tr.Entries[0].Txn.Mint.NumSerials, uint64(3))
	testutil.AssertEqual(t, tr.Entries[1].Query.Gas, uint64(25000))
	testutil.AssertEqual(t, tr.Start.Year(), 2025)

	badPath := filepath.Join(dir, "bad.yaml")
	testutil.AssertNoError(t, os.WriteFile(badPath, []byte("entries:\n  - offset: 1s\n"), 0o600))
	_, err = loadTrace(badPath)
	testutil.AssertError(t, err)

	tr, err = loadTrace(filepath.Join("testdata", "trace.yaml"))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, tr.Start, defaultTraceStart)
}

func TestCountAliasRecipients(t *testing.T) {
	txn := &throttle.TxnInfo{
		Kind:     functionality.CryptoTransfer,
		Transfer: &throttle.TransferOp{Recipients: []string{"0.0.1001", "0x00a1", "0.0", "alias"}},
	}
	testutil.AssertEqual(t, countAliasRecipients(txn), uint64(3))
	testutil.AssertEqual(t, countAliasRecipients(&throttle.TxnInfo{Kind: functionality.CryptoTransfer}), uint64(0))
}

func TestServer(t *testing.T) {
	sim, err := testOptions().newSimulator()
	testutil.AssertNoError(t, err)
	testutil.AssertNoError(t, sim.storeSchedules(context.Background(), nil))
	srv := newServer(sim, prometheus.NewRegistry())
	srv.now = func() time.Time { return testutil.Epoch }

	post := func(path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)))
		return rec
	}

	for i, want := range []string{`"throttled":false`, `"throttled":false`, `"throttled":true`} {
		rec := post("/v1/txn", `{"kind":"CryptoTransfer","consensusTime":"2024-01-01T00:00:00Z"}`)
		testutil.AssertEqual(t, rec.Code, http.StatusOK)
		if !strings.Contains(rec.Body.String(), want) {
			t.Errorf("txn %d: body = %s, want %s", i, rec.Body.String(), want)
		}
	}

	rec := post("/v1/txn", `{"kind":"ContractCall","gasLimit":5000000}`)
	testutil.AssertEqual(t, rec.Code, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"gasThrottled":true`) {
		t.Errorf("gas txn body = %s, want gasThrottled", rec.Body.String())
	}

	rec = post("/v1/query", `{"kind":"CryptoGetInfo"}`)
	testutil.AssertEqual(t, rec.Code, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"throttled":false`) {
		t.Errorf("query body = %s, want admitted", rec.Body.String())
	}

	rec = post("/v1/txn", `{"kind":"NoSuchOperation"}`)
	testutil.AssertEqual(t, rec.Code, http.StatusBadRequest)

	rec = post("/v1/query", `{"kind":"CryptoTransfer"}`)
	testutil.AssertEqual(t, rec.Code, http.StatusBadRequest)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	testutil.AssertEqual(t, rec.Code, http.StatusOK)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/txn", nil))
	testutil.AssertEqual(t, rec.Code, http.StatusMethodNotAllowed)
}

func TestServerDecisionTime(t *testing.T) {
	srv := &server{now: func() time.Time { return testutil.Epoch }}
	consensus := testutil.Epoch.Add(time.Hour)

	testutil.AssertEqual(t, srv.decisionTime(consensus), consensus)
	testutil.AssertEqual(t, srv.decisionTime(time.Time{}), testutil.Epoch)
}
