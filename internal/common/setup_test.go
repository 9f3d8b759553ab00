package common

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestInitializeLogger(t *testing.T) {
	restore := zap.ReplaceGlobals(zap.NewNop())
	defer restore()

	logger, cleanup := InitializeLogger()
	defer cleanup()

	if logger == nil {
		t.Fatal("Expected a logger")
	}
	if zap.L() != logger {
		t.Error("Expected InitializeLogger to install the global logger")
	}
	if !zap.L().Core().Enabled(zap.InfoLevel) {
		t.Error("Expected the global logger to log at info level")
	}
}

func TestIsIgnorableSyncErrorErrorsNew(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{errors.New("sync /dev/stderr: inappropriate ioctl for device"), true},
		{errors.New("sync /dev/stdout: inappropriate ioctl for device"), true},
		{errors.New("sync /var/log/app.log: no space left on device"), false},
	}
	for _, tt := range tests {
		if got := isIgnorableSyncError(tt.err); got != tt.expected {
			t.Errorf("isIgnorableSyncError(%q) = %v, expected %v", tt.err, got, tt.expected)
		}
	}
}
