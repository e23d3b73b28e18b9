package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/justinvforvendetta/electrum-xmc/pkg/log"
)

// RunFilter copies the events matching filter into a new log file.
func RunFilter(path string, filter log.Filter, output string) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	enc := log.NewEncoder(out)
	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := enc.Encode(event); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
		count++
	}

	fmt.Printf("Wrote %d events to %s\n", count, output)
	return nil
}
