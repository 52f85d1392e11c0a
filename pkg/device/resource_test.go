package device

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

type fakeSource struct {
	id, model, friendly, manufacturer string
	calls                             int
}

func (f *fakeSource) DeviceID() (string, bool) {
	f.calls++
	return f.id, f.id != ""
}

func (f *fakeSource) Model() (string, bool) {
	return f.model, f.model != ""
}

type friendlySource struct{ *fakeSource }

func (f friendlySource) FriendlyModelName() (string, bool) {
	return f.friendly, f.friendly != ""
}

type manufacturerSource struct{ *fakeSource }

func (m manufacturerSource) Manufacturer() (string, bool) {
	return m.manufacturer, m.manufacturer != ""
}

func attrMap(attrs []attribute.KeyValue) map[string]string {
	out := make(map[string]string, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.AsString()
	}
	return out
}

func TestResourceEnricher_Attributes(t *testing.T) {
	tests := []struct {
		name   string
		source IdentitySource
		goos   string
		want   map[string]string
	}{
		{
			name:   "apple with friendly name",
			source: friendlySource{&fakeSource{id: "dev-1", model: "iPhone15,2", friendly: "iPhone 14 Pro"}},
			goos:   "ios",
			want: map[string]string{
				"device.id":               "dev-1",
				"device.model.identifier": "iPhone15,2",
				"device.manufacturer":     "Apple",
				"device.model.name":       "iPhone 14 Pro",
			},
		},
		{
			name:   "desktop falls back to raw model",
			source: &fakeSource{id: "dev-2", model: "MacBookPro18,3"},
			goos:   "darwin",
			want: map[string]string{
				"device.id":               "dev-2",
				"device.model.identifier": "MacBookPro18,3",
				"device.manufacturer":     "Apple",
				"device.model.name":       "MacBookPro18,3",
			},
		},
		{
			name:   "missing id and model are omitted",
			source: &fakeSource{},
			goos:   "linux",
			want:   map[string]string{},
		},
		{
			name:   "friendly name used even without model",
			source: friendlySource{&fakeSource{friendly: "Pixel 8"}},
			goos:   "android",
			want:   map[string]string{"device.model.name": "Pixel 8"},
		},
		{
			name:   "manufacturer from source off apple",
			source: manufacturerSource{&fakeSource{model: "ThinkPad", manufacturer: "Lenovo"}},
			goos:   "linux",
			want: map[string]string{
				"device.model.identifier": "ThinkPad",
				"device.manufacturer":     "Lenovo",
				"device.model.name":       "ThinkPad",
			},
		},
		{
			name:   "nil source",
			source: nil,
			goos:   "linux",
			want:   map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newResourceEnricher(tt.source, tt.goos)
			assert.Equal(t, tt.want, attrMap(e.Attributes()))
		})
	}
}

func TestResourceEnricher_ComputedOnce(t *testing.T) {
	src := &fakeSource{id: "dev-1", model: "m"}
	e := newResourceEnricher(src, "linux")

	first := e.Attributes()
	second := e.Attributes()
	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.calls)

	// Callers cannot mutate the cached set.
	first[0] = attribute.String("device.id", "tampered")
	assert.Equal(t, "dev-1", attrMap(e.Attributes())["device.id"])
}

func TestResourceEnricher_Resource(t *testing.T) {
	e := newResourceEnricher(&fakeSource{id: "dev-1", model: "m"}, "darwin")
	res := e.Resource()

	v, ok := res.Set().Value("device.manufacturer")
	require.True(t, ok)
	assert.Equal(t, "Apple", v.AsString())
}

func TestHostIdentity_PersistsID(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	h := NewHostIdentity(dir)
	id, ok := h.DeviceID()
	require.True(t, ok)
	require.NoError(t, h.Err())
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dir, deviceIDFile))
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	again, ok := NewHostIdentity(dir).DeviceID()
	require.True(t, ok)
	assert.Equal(t, id, again)
}

func TestHostIdentity_ReplacesCorruptID(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, deviceIDFile), []byte("not-a-uuid"), 0600))

	id, ok := NewHostIdentity(dir).DeviceID()
	require.True(t, ok)
	assert.NotEqual(t, "not-a-uuid", id)

	b, err := os.ReadFile(filepath.Join(dir, deviceIDFile))
	require.NoError(t, err)
	assert.Equal(t, id, strings.TrimSpace(string(b)))
}

func TestHostIdentity_NoStateDir(t *testing.T) {
	h := NewHostIdentity("")
	_, ok := h.DeviceID()
	assert.False(t, ok)
	assert.Error(t, h.Err())
}

func TestHostIdentity_Model(t *testing.T) {
	h := NewHostIdentity(t.TempDir())
	h.dmiPath = filepath.Join(t.TempDir(), "missing")

	model, ok := h.Model()
	require.True(t, ok)
	assert.Equal(t, runtime.GOOS+"/"+runtime.GOARCH, model)

	if runtime.GOOS == "linux" {
		dmi := filepath.Join(t.TempDir(), "product_name")
		require.NoError(t, os.WriteFile(dmi, []byte("ThinkPad X1\n"), 0600))
		h.dmiPath = dmi
		model, ok = h.Model()
		require.True(t, ok)
		assert.Equal(t, "ThinkPad X1", model)
	}
}
