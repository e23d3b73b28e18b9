package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/justinvforvendetta/electrum-xmc/pkg/log"
)

// RunExport writes the log file in jsonl or csv form to output, or to
// stdout when output is empty.
func RunExport(path, format, output string) error {
	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (must be jsonl or csv)", format)
	}
}

// exportEvent is the JSON shape of one exported event.
type exportEvent struct {
	Timestamp    time.Time             `json:"timestamp"`
	ConnectionID string                `json:"connection_id"`
	Direction    string                `json:"direction"`
	Layer        string                `json:"layer"`
	Category     string                `json:"category"`
	Host         string                `json:"host,omitempty"`
	RemoteAddr   string                `json:"remote_addr,omitempty"`
	Frame        *log.FrameEvent       `json:"frame,omitempty"`
	Message      *log.MessageEvent     `json:"message,omitempty"`
	StateChange  *log.StateChangeEvent `json:"state_change,omitempty"`
	Error        *log.ErrorEventData   `json:"error,omitempty"`
}

func toExport(e log.Event) exportEvent {
	return exportEvent{
		Timestamp:    e.Timestamp,
		ConnectionID: e.ConnectionID,
		Direction:    e.Direction.String(),
		Layer:        e.Layer.String(),
		Category:     e.Category.String(),
		Host:         e.Host,
		RemoteAddr:   e.RemoteAddr,
		Frame:        e.Frame,
		Message:      e.Message,
		StateChange:  e.StateChange,
		Error:        e.Error,
	}
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	enc := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := enc.Encode(toExport(event)); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "connection_id", "direction", "layer", "category", "host", "summary"}
	if err := cw.Write(header); err != nil {
		return err
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			return cw.Error()
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		row := []string{
			event.Timestamp.UTC().Format(time.RFC3339Nano),
			event.ConnectionID,
			event.Direction.String(),
			event.Layer.String(),
			event.Category.String(),
			event.Host,
			summarize(event),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
}

// summarize produces one cell describing the payload.
func summarize(e log.Event) string {
	switch {
	case e.Frame != nil:
		return strconv.Itoa(e.Frame.Size) + " bytes"
	case e.Message != nil:
		s := e.Message.Method
		if s == "" {
			s = e.Message.Type.String()
		}
		return s + " id=" + strconv.FormatUint(e.Message.MessageID, 10)
	case e.StateChange != nil:
		return e.StateChange.OldState + "->" + e.StateChange.NewState
	case e.Error != nil:
		return e.Error.Message
	default:
		return ""
	}
}
