package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360studio/adw/config"
)

func TestR2UploaderDisabledWithoutCredentials(t *testing.T) {
	u := NewR2Uploader(context.Background(), config.EnvironmentConfig{}, nil)

	assert.False(t, u.Enabled())
	_, err := u.Upload(context.Background(), "shot.png", "adw/run/review/shot.png")
	assert.Error(t, err)
}

func TestUploadScreenshotsFallsBackToLocalPaths(t *testing.T) {
	u := &R2Uploader{} // disabled

	urls := UploadScreenshots(context.Background(), u,
		[]string{"shots/a.png", "", "shots/b.png"}, "run00001", nil)

	// Failed uploads map each path to itself; empty entries are dropped.
	assert.Equal(t, map[string]string{
		"shots/a.png": "shots/a.png",
		"shots/b.png": "shots/b.png",
	}, urls)
}
