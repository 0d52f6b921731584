// Package image describes one disk image build request and the environment
// handed to the builder script.
package image

import (
	"errors"
	"fmt"
	"strconv"

	"go-mkimg/util"
)

// Environment keys understood by the builder script.
const (
	EnvName       = "NAME"
	EnvContentSrc = "CONTENT_SRC"
	EnvSize       = "SIZE"
	EnvTmpDir     = "TMP_DIR"
	EnvRmFailed   = "RM_FAILED"
)

// SizeFromExisting tells the builder to keep the size of an existing image.
const SizeFromExisting int64 = -1

var ErrEmptyName = errors.New("image name is required")

// BuildConfig is the immutable description of one attempt's target. Build a
// fresh one per attempt: SIZE depends on whether the image already exists,
// which a previous attempt may have changed.
type BuildConfig struct {
	Name          string
	ContentSource string
	Size          *int64 // nil: let the builder decide
	TempDir       string
}

// NewBuildConfig derives the effective size from the filesystem. When name
// is an existing regular file the requested size is ignored and the builder
// is told to reuse the file (SizeFromExisting).
func NewBuildConfig(name, content string, size *int64, tmpDir string) BuildConfig {
	cfg := BuildConfig{
		Name:          name,
		ContentSource: content,
		TempDir:       tmpDir,
	}

	switch {
	case name != "" && util.RegularFileExists(name):
		s := SizeFromExisting
		cfg.Size = &s
	case size != nil:
		s := *size
		cfg.Size = &s
	}

	return cfg
}

// SizeString renders Size the way the builder expects it: decimal, or
// empty when unset.
func (c BuildConfig) SizeString() string {
	if c.Size == nil {
		return ""
	}
	return strconv.FormatInt(*c.Size, 10)
}

// Environ returns the builder's configuration keys. The caller merges them
// over the inherited environment.
func (c BuildConfig) Environ() map[string]string {
	return map[string]string{
		EnvName:       c.Name,
		EnvContentSrc: c.ContentSource,
		EnvSize:       c.SizeString(),
		EnvTmpDir:     c.TempDir,
		EnvRmFailed:   "1",
	}
}

// Validate checks the request before any process is started.
func (c BuildConfig) Validate() error {
	if c.Name == "" {
		return ErrEmptyName
	}
	if c.ContentSource != "" && !util.DirExists(c.ContentSource) {
		return fmt.Errorf("content source %q is not a directory", c.ContentSource)
	}
	if c.TempDir != "" && !util.DirExists(c.TempDir) {
		return fmt.Errorf("temporary directory %q does not exist", c.TempDir)
	}
	return nil
}

func (c BuildConfig) String() string {
	size := c.SizeString()
	if size == "" {
		size = "auto"
	}
	return fmt.Sprintf("%s (content=%s size=%s)", c.Name, c.ContentSource, size)
}
