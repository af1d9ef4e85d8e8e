package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/vnykmshr/detthrottle/pkg/throttle"
)

// trace is a recorded sequence of operations to replay.
type trace struct {
	// Start is the decision time offsets are relative to. Defaults to
	// 2024-01-01T00:00:00Z.
	Start     time.Time                        `json:"start,omitempty" yaml:"start,omitempty"`
	Schedules map[string]throttle.ScheduledTxn `json:"schedules,omitempty" yaml:"schedules,omitempty"`
	Entries   []traceEntry                     `json:"entries" yaml:"entries"`
}

// traceEntry is one operation. Exactly one of Txn and Query is set.
type traceEntry struct {
	Offset duration            `json:"offset" yaml:"offset"`
	Txn    *throttle.TxnInfo   `json:"txn,omitempty" yaml:"txn,omitempty"`
	Query  *throttle.QueryInfo `json:"query,omitempty" yaml:"query,omitempty"`
	// UnusedGas is returned to the gas throttle after an admitted Txn.
	UnusedGas uint64 `json:"unusedGas,omitempty" yaml:"unusedGas,omitempty"`
}

var defaultTraceStart = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// duration is a time.Duration written as a string like "1.5s".
type duration time.Duration

func (d duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

func loadTrace(path string) (*trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tr trace
	switch filepath.Ext(path) {
	case ".json":
		err = json.Unmarshal(data, &tr)
	default:
		err = yaml.Unmarshal(data, &tr)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := tr.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if tr.Start.IsZero() {
		tr.Start = defaultTraceStart
	}
	return &tr, nil
}

func (tr *trace) validate() error {
	for i, e := range tr.Entries {
		if (e.Txn == nil) == (e.Query == nil) {
			return fmt.Errorf("entry %d: exactly one of txn and query must be set", i)
		}
		if e.Offset < 0 {
			return fmt.Errorf("entry %d: negative offset %s", i, time.Duration(e.Offset))
		}
	}
	return nil
}
