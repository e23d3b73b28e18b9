package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justinvforvendetta/electrum-xmc/pkg/log"
)

// writeTestLog creates a log file with a known mix of events.
func writeTestLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.elog")

	logger, err := log.NewFileLogger(path)
	require.NoError(t, err)
	defer logger.Close()

	base := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)

	logger.Log(log.Event{
		Timestamp:    base,
		ConnectionID: "conn-aaaa-1111",
		Direction:    log.DirectionOut,
		Layer:        log.LayerWire,
		Category:     log.CategoryMessage,
		Host:         "node.example",
		Message: &log.MessageEvent{
			Type: log.MessageTypeRequest, MessageID: 0, Method: "server.version",
		},
	})
	logger.Log(log.Event{
		Timestamp:    base.Add(time.Second),
		ConnectionID: "conn-aaaa-1111",
		Direction:    log.DirectionIn,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Host:         "node.example",
		Frame:        &log.FrameEvent{Size: 25, Data: []byte(`{"id":0,"result":"v"}`)},
	})
	logger.Log(log.Event{
		Timestamp:    base.Add(2 * time.Second),
		ConnectionID: "conn-bbbb-2222",
		Layer:        log.LayerSession,
		Category:     log.CategoryState,
		Host:         "other.example",
		StateChange:  &log.StateChangeEvent{OldState: "OPENING", NewState: "FAILED", Reason: "connect refused"},
	})
	logger.Log(log.Event{
		Timestamp:    base.Add(3 * time.Second),
		ConnectionID: "conn-bbbb-2222",
		Layer:        log.LayerWire,
		Category:     log.CategoryError,
		Error:        &log.ErrorEventData{Layer: log.LayerWire, Message: "malformed frame"},
	})

	return path
}

func TestRunView(t *testing.T) {
	path := writeTestLog(t)

	var out bytes.Buffer
	require.NoError(t, RunView(path, log.Filter{}, &out))

	s := out.String()
	assert.Contains(t, s, "server.version")
	assert.Contains(t, s, "conn-aaa")
	assert.Contains(t, s, "OPENING -> FAILED")
	assert.Contains(t, s, "malformed frame")
	assert.Contains(t, s, `{"id":0,"result":"v"}`)
}

func TestRunViewFiltered(t *testing.T) {
	path := writeTestLog(t)

	filter, err := BuildFilter("", "", "", "", "wire", "", "")
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, RunView(path, filter, &out))

	s := out.String()
	assert.Contains(t, s, "server.version")
	assert.NotContains(t, s, "OPENING -> FAILED")
}

func TestBuildFilterInvalid(t *testing.T) {
	_, err := BuildFilter("", "", "", "", "bogus", "", "")
	assert.Error(t, err)

	_, err = BuildFilter("", "", "not-a-time", "", "", "", "")
	assert.Error(t, err)

	_, err = BuildFilter("", "", "", "", "", "sideways", "")
	assert.Error(t, err)
}

func TestRunFilterWritesNewFile(t *testing.T) {
	path := writeTestLog(t)
	out := filepath.Join(t.TempDir(), "filtered.elog")

	filter := log.Filter{ConnectionID: "conn-bbbb-2222"}
	require.NoError(t, RunFilter(path, filter, out))

	reader, err := log.NewReader(out)
	require.NoError(t, err)
	defer reader.Close()

	count := 0
	for {
		event, err := reader.Next()
		if err != nil {
			break
		}
		assert.Equal(t, "conn-bbbb-2222", event.ConnectionID)
		count++
	}
	assert.Equal(t, 2, count)
}

func TestRunExportJSONL(t *testing.T) {
	path := writeTestLog(t)
	out := filepath.Join(t.TempDir(), "events.jsonl")

	require.NoError(t, RunExport(path, "jsonl", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[0], `server.version`)
	assert.Contains(t, lines[2], `FAILED`)
}

func TestRunExportCSV(t *testing.T) {
	path := writeTestLog(t)
	out := filepath.Join(t.TempDir(), "events.csv")

	require.NoError(t, RunExport(path, "csv", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	text := string(data)
	lines := strings.Split(strings.TrimSpace(text), "\n")
	assert.Len(t, lines, 5) // header + 4 events
	assert.Contains(t, lines[0], "timestamp")
	assert.Contains(t, text, "node.example")
	assert.Contains(t, text, "OPENING->FAILED")
}

func TestRunExportUnknownFormat(t *testing.T) {
	path := writeTestLog(t)
	assert.Error(t, RunExport(path, "yaml", ""))
}

func TestRunStats(t *testing.T) {
	path := writeTestLog(t)

	var out bytes.Buffer
	require.NoError(t, RunStats(path, &out))

	s := out.String()
	assert.Contains(t, s, "Total Events: 4")
	assert.Contains(t, s, "Connections: 2")
	assert.Contains(t, s, "Errors: 1")
	assert.Contains(t, s, "WIRE:")
}
