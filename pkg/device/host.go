package device

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	deviceIDFile = "device_id"
	dmiModelPath = "/sys/devices/virtual/dmi/id/product_name"
)

// HostIdentity is an IdentitySource for desktop and server processes.
//
// The device id is a random UUID persisted under stateDir so it survives
// restarts. The model comes from DMI on Linux when readable and otherwise
// falls back to GOOS/GOARCH.
type HostIdentity struct {
	stateDir string
	dmiPath  string

	idOnce sync.Once
	id     string
	idErr  error
}

// NewHostIdentity creates a source that persists its id in stateDir.
func NewHostIdentity(stateDir string) *HostIdentity {
	return &HostIdentity{
		stateDir: stateDir,
		dmiPath:  dmiModelPath,
	}
}

// DefaultStateDir returns ~/.config/beacon.
func DefaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".config", "beacon"), nil
}

// DeviceID implements IdentitySource.
func (h *HostIdentity) DeviceID() (string, bool) {
	h.idOnce.Do(func() {
		h.id, h.idErr = h.loadOrCreateID()
	})
	if h.idErr != nil {
		return "", false
	}
	return h.id, true
}

// Err returns the error from loading or persisting the device id, if any.
func (h *HostIdentity) Err() error {
	h.DeviceID()
	return h.idErr
}

// Model implements IdentitySource.
func (h *HostIdentity) Model() (string, bool) {
	if runtime.GOOS == "linux" {
		if b, err := os.ReadFile(h.dmiPath); err == nil {
			if model := strings.TrimSpace(string(b)); model != "" {
				return model, true
			}
		}
	}
	return runtime.GOOS + "/" + runtime.GOARCH, true
}

func (h *HostIdentity) loadOrCreateID() (string, error) {
	if h.stateDir == "" {
		return "", errors.New("device state directory not set")
	}
	path := filepath.Join(h.stateDir, deviceIDFile)

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if id, perr := uuid.ParseBytes([]byte(strings.TrimSpace(string(b)))); perr == nil {
			return id.String(), nil
		}
		// Corrupt file: fall through and replace it.
	case !errors.Is(err, fs.ErrNotExist):
		return "", fmt.Errorf("reading device id: %w", err)
	}

	if err := os.MkdirAll(h.stateDir, 0700); err != nil {
		return "", fmt.Errorf("creating state directory %s: %w", h.stateDir, err)
	}
	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0600); err != nil {
		return "", fmt.Errorf("writing device id: %w", err)
	}
	return id, nil
}
