package exiftool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"photo-catalog/internal/logging"
	"photo-catalog/internal/metrics"
)

// Default timeouts per operation class.
const (
	ExtractTimeout = 30 * time.Second
	ReadTimeout    = 15 * time.Second
	KeywordTimeout = 10 * time.Second
)

var (
	// ErrToolFailed indicates a non-zero exit or malformed output.
	ErrToolFailed = errors.New("metadata tool failed")
	// ErrTimeout indicates the invocation exceeded its deadline.
	ErrTimeout = errors.New("metadata tool timed out")
)

// Runner invokes the external metadata tool.
type Runner struct {
	bin string
}

// NewRunner creates a Runner for the given binary name or path.
// An empty bin defaults to "exiftool" resolved from PATH.
func NewRunner(bin string) *Runner {
	if bin == "" {
		bin = "exiftool"
	}
	return &Runner{bin: bin}
}

// Available reports whether the tool binary can be resolved.
func (r *Runner) Available() bool {
	_, err := exec.LookPath(r.bin)
	return err == nil
}

// run executes the tool with args and returns stdout. Timeout errors are
// wrapped in ErrTimeout, other failures in ErrToolFailed.
func (r *Runner) run(ctx context.Context, op string, timeout time.Duration, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, r.bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	metrics.ExiftoolDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			metrics.ExiftoolInvocationsTotal.WithLabelValues(op, "timeout").Inc()
			return nil, fmt.Errorf("%w: %s after %v", ErrTimeout, op, timeout)
		}
		metrics.ExiftoolInvocationsTotal.WithLabelValues(op, "error").Inc()
		logging.Debug("exiftool %s failed: %v, stderr: %s", op, err, stderr.String())
		return nil, fmt.Errorf("%w: %s: %v", ErrToolFailed, op, err)
	}

	metrics.ExiftoolInvocationsTotal.WithLabelValues(op, "success").Inc()
	return stdout.Bytes(), nil
}

// ExtractJSON reads all metadata of path as a flat group-prefixed map
// ("EXIF:Make", "XMP-dc:Subject", ...). Duplicate tags are kept apart by
// their group prefix (-G -a), names are short (-s) and composite tags are
// included (-e disables print conversion side effects on composites).
func (r *Runner) ExtractJSON(ctx context.Context, path string) (map[string]interface{}, error) {
	out, err := r.run(ctx, "extract", ExtractTimeout, "-json", "-G", "-a", "-s", "-e", path)
	if err != nil {
		return nil, err
	}
	return decodeSingle(out)
}

// ReadTags reads only the named tags of path. Tag names may carry group
// prefixes ("XMP-dc:Subject").
func (r *Runner) ReadTags(ctx context.Context, path string, tags []string) (map[string]interface{}, error) {
	args := []string{"-json", "-G", "-a", "-s"}
	for _, tag := range tags {
		args = append(args, "-"+tag)
	}
	args = append(args, path)

	out, err := r.run(ctx, "read_tags", ReadTimeout, args...)
	if err != nil {
		return nil, err
	}
	return decodeSingle(out)
}

// WriteTags applies tag assignment arguments ("-XMP-dc:Title=Venice",
// "-XMP-dc:Subject+=sea") to path in place.
func (r *Runner) WriteTags(ctx context.Context, path string, assignments []string) error {
	args := append([]string{"-overwrite_original"}, assignments...)
	args = append(args, path)
	_, err := r.run(ctx, "write_tags", ExtractTimeout, args...)
	return err
}

// ExtractBinary extracts a binary tag (PreviewImage, JpgFromRaw, ...)
// from path. Returns the raw bytes, which may be empty when the tag is
// absent.
func (r *Runner) ExtractBinary(ctx context.Context, path, tag string) ([]byte, error) {
	return r.run(ctx, "extract_binary", ExtractTimeout, "-b", "-"+tag, path)
}

// decodeSingle parses exiftool's one-element JSON array output.
func decodeSingle(out []byte) (map[string]interface{}, error) {
	var records []map[string]interface{}
	if err := json.Unmarshal(out, &records); err != nil {
		return nil, fmt.Errorf("%w: malformed JSON output: %v", ErrToolFailed, err)
	}
	if len(records) == 0 {
		return map[string]interface{}{}, nil
	}
	return records[0], nil
}
