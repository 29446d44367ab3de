// internal/converter/local.go
package converter

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"
)

const (
	defaultBinary  = "ebook-convert"
	probeTimeout   = 5 * time.Second
	convertTimeout = 5 * time.Minute
)

// Local runs conversions through a locally installed ebook-convert binary.
type Local struct {
	binPath string
}

// NewLocal looks up the conversion binary in PATH. A missing binary is not
// fatal at construction time; HealthCheck and Convert fail until it appears.
func NewLocal(binary string) *Local {
	if binary == "" {
		binary = defaultBinary
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		log.Printf("WARN converter: %s not found in PATH, local conversions will fail", binary)
		return &Local{}
	}
	return &Local{binPath: path}
}

func (l *Local) HealthCheck(ctx context.Context) error {
	if _, err := l.Version(ctx); err != nil {
		return err
	}
	return nil
}

// Version runs the binary with --version and returns its first output line.
func (l *Local) Version(ctx context.Context) (string, error) {
	if l.binPath == "" {
		return "", fmt.Errorf("%s executable not found", defaultBinary)
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, l.binPath, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("probe %s: %w", l.binPath, err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// Formats returns the binary's supported input and output format lists.
func (l *Local) Formats(ctx context.Context) (inputs, outputs []string, err error) {
	if l.binPath == "" {
		return nil, nil, fmt.Errorf("%s executable not found", defaultBinary)
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	in, err := exec.CommandContext(ctx, l.binPath, "--input-fmts").Output()
	if err != nil {
		return nil, nil, fmt.Errorf("list input formats: %w", err)
	}
	out, err := exec.CommandContext(ctx, l.binPath, "--output-fmts").Output()
	if err != nil {
		return nil, nil, fmt.Errorf("list output formats: %w", err)
	}
	return strings.Fields(string(in)), strings.Fields(string(out)), nil
}

func (l *Local) Convert(ctx context.Context, sourcePath, targetPath string) error {
	return l.ConvertWithArgs(ctx, sourcePath, targetPath, nil)
}

// ConvertWithArgs appends extra tool options to the invocation; the
// conversion service passes caller-supplied options through this way.
func (l *Local) ConvertWithArgs(ctx context.Context, sourcePath, targetPath string, extra []string) error {
	if l.binPath == "" {
		return fmt.Errorf("%s executable not found", defaultBinary)
	}

	ctx, cancel := context.WithTimeout(ctx, convertTimeout)
	defer cancel()

	args := append([]string{sourcePath, targetPath}, extra...)
	cmd := exec.CommandContext(ctx, l.binPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w after %v", ErrTimeout, convertTimeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("conversion failed: %w: %s", err, msg)
		}
		return fmt.Errorf("conversion failed: %w", err)
	}
	return nil
}
