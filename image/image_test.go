package image

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func TestNewBuildConfig_Size(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "existing.img")
	require.NoError(t, os.WriteFile(existing, []byte("img"), 0644))

	tests := []struct {
		name     string
		image    string
		size     *int64
		wantSize string
	}{
		{"new image with size", filepath.Join(dir, "new.img"), int64Ptr(1 << 30), "1073741824"},
		{"new image without size", filepath.Join(dir, "new.img"), nil, ""},
		{"existing image ignores size", existing, int64Ptr(4096), "-1"},
		{"existing image without size", existing, nil, "-1"},
		{"directory is not an existing image", dir, int64Ptr(10), "10"},
		{"negative size passes through", filepath.Join(dir, "new.img"), int64Ptr(-5), "-5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewBuildConfig(tt.image, "/content", tt.size, "")
			assert.Equal(t, tt.wantSize, cfg.SizeString())
			assert.Equal(t, tt.wantSize, cfg.Environ()[EnvSize])
		})
	}
}

func TestNewBuildConfig_CopiesSize(t *testing.T) {
	size := int64(100)
	cfg := NewBuildConfig("/nonexistent/disk.img", "", &size, "")
	size = 200

	assert.Equal(t, "100", cfg.SizeString())
}

func TestBuildConfig_Environ(t *testing.T) {
	cfg := NewBuildConfig("/nonexistent/disk.img", "/srv/content", nil, "/var/tmp/mkimg")

	assert.Equal(t, map[string]string{
		"NAME":        "/nonexistent/disk.img",
		"CONTENT_SRC": "/srv/content",
		"SIZE":        "",
		"TMP_DIR":     "/var/tmp/mkimg",
		"RM_FAILED":   "1",
	}, cfg.Environ())
}

func TestBuildConfig_Validate(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	assert.ErrorIs(t, BuildConfig{}.Validate(), ErrEmptyName)
	assert.NoError(t, BuildConfig{Name: "disk.img"}.Validate())
	assert.NoError(t, BuildConfig{Name: "disk.img", ContentSource: dir, TempDir: dir}.Validate())
	assert.Error(t, BuildConfig{Name: "disk.img", ContentSource: file}.Validate())
	assert.Error(t, BuildConfig{Name: "disk.img", TempDir: filepath.Join(dir, "missing")}.Validate())
}
