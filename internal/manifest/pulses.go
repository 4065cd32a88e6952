package manifest

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// CountPulses counts one pulse per non-empty line of a TTL sync file and
// parses each line as a timestamp in seconds. The count always equals the
// file's non-empty line count. Timestamps come back nil when any line fails
// to parse; a count does not need instants, but a TTL-derived timebase does.
func CountPulses(path string) (count int, times []float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, nil, fmt.Errorf("opening ttl file %s: %w", path, err)
	}
	defer f.Close()

	times = make([]float64, 0, 1024)
	parseable := true

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		count++
		if !parseable {
			continue
		}
		// Pulse files are either bare timestamps or whitespace-separated
		// records whose first field is the timestamp.
		field := line
		if idx := strings.IndexAny(line, " \t,"); idx > 0 {
			field = line[:idx]
		}
		v, perr := strconv.ParseFloat(field, 64)
		if perr != nil {
			parseable = false
			continue
		}
		times = append(times, v)
	}
	if err := scanner.Err(); err != nil {
		return 0, nil, fmt.Errorf("reading ttl file %s: %w", path, err)
	}

	if !parseable {
		return count, nil, nil
	}
	return count, times, nil
}

// ReadSampleTimes reads a derived-data sidecar of one sample timestamp per
// non-empty line. Unlike a pulse count, sample alignment cannot proceed
// without real instants, so an unparsable line is an error here.
func ReadSampleTimes(path string) ([]float64, error) {
	count, times, err := CountPulses(path)
	if err != nil {
		return nil, err
	}
	if times == nil && count > 0 {
		return nil, fmt.Errorf("sample file %s contains unparsable timestamps", path)
	}
	return times, nil
}
