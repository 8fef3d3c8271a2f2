// Package scm registers baseline changes with source control.
package scm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
)

var logger = log.WithField("package", "scm")

// ErrNotTracked means the file has no committed version.
var ErrNotTracked = errors.New("file not tracked at HEAD")

// SCM is the source control collaborator.
type SCM interface {
	// Add registers a new or modified file
	Add(ctx context.Context, path string) error
	// Delete removes a file from the working tree and the index
	Delete(ctx context.Context, path string) error
	// ShowHead returns the committed content of path
	ShowHead(ctx context.Context, path string) ([]byte, error)
}

// Git runs the git binary in the directory of each file.
type Git struct {
	Binary string
}

var _ SCM = (*Git)(nil)

func NewGit() *Git {
	return &Git{Binary: "git"}
}

func (g *Git) Add(ctx context.Context, path string) error {
	dir, base := filepath.Split(path)
	if _, _, err := g.run(ctx, dir, "add", "--", base); err != nil {
		return fmt.Errorf("failed to add %s: %w", path, err)
	}
	logger.WithField("path", path).Debug("Added to git")
	return nil
}

func (g *Git) Delete(ctx context.Context, path string) error {
	dir, base := filepath.Split(path)
	if _, _, err := g.run(ctx, dir, "rm", "-f", "--quiet", "--ignore-unmatch", "--", base); err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	// untracked files are left behind by --ignore-unmatch
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	logger.WithField("path", path).Debug("Deleted from git")
	return nil
}

func (g *Git) ShowHead(ctx context.Context, path string) ([]byte, error) {
	dir, base := filepath.Split(path)
	stdout, stderr, err := g.run(ctx, dir, "show", "HEAD:./"+base)
	if err != nil {
		if strings.Contains(stderr, "does not exist") || strings.Contains(stderr, "exists on disk, but not in") {
			return nil, fmt.Errorf("%w: %s", ErrNotTracked, path)
		}
		return nil, fmt.Errorf("failed to show %s at HEAD: %w", path, err)
	}
	return stdout, nil
}

func (g *Git) run(ctx context.Context, dir string, args ...string) ([]byte, string, error) {
	if dir == "" {
		dir = "."
	}
	cmd := exec.CommandContext(ctx, g.Binary, args...)
	cmd.Dir = dir
	logger.WithField("cmd", cmd.String()).WithField("dir", dir).Debug("Running git")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		logger.WithField("stdout", stdout.String()).WithField("stderr", stderr.String()).Debug("Git command failed")
		return nil, stderr.String(), fmt.Errorf("git %s: %w\nStderr: %s", args[0], err, stderr.String())
	}
	return stdout.Bytes(), stderr.String(), nil
}
