package remoteconfig

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestErrorDescriptor_Code(t *testing.T) {
	tests := []struct {
		in   string
		want ErrorDescriptor
	}{
		{`{"message":"disabled"}`, ErrorDescriptor{Message: "disabled"}},
		{`{"message":"disabled","code":"feature_off"}`, ErrorDescriptor{Message: "disabled", Code: "feature_off"}},
		{`{"message":"forbidden","code":403}`, ErrorDescriptor{Message: "forbidden", Code: "403"}},
		{`{"message":"x","code":null}`, ErrorDescriptor{Message: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var got ErrorDescriptor
			require.NoError(t, json.Unmarshal([]byte(tt.in), &got))
			assert.Equal(t, tt.want, got)
		})
	}

	var bad ErrorDescriptor
	assert.Error(t, json.Unmarshal([]byte(`{"code":true}`), &bad))
}

func TestEnvelope_Result(t *testing.T) {
	items := []int{1, 2}
	empty := []int{}

	got, ok := Envelope[[]int]{Data: &items}.Result()
	assert.True(t, ok)
	assert.Equal(t, items, got)

	got, ok = Envelope[[]int]{Data: &empty}.Result()
	assert.True(t, ok)
	assert.Empty(t, got)

	_, ok = Envelope[[]int]{Data: &items, Error: &ErrorDescriptor{Message: "no"}}.Result()
	assert.False(t, ok)

	_, ok = Envelope[[]int]{}.Result()
	assert.False(t, ok)
}

func TestDecodeEnvelope_Properties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		data := rapid.SliceOfN(rapid.Int(), 0, 10).Draw(rt, "data")
		withData := rapid.Bool().Draw(rt, "withData")
		withError := rapid.Bool().Draw(rt, "withError")

		doc := map[string]any{}
		if withData {
			if data == nil {
				data = []int{}
			}
			doc["data"] = data
		}
		if withError {
			doc["error"] = map[string]any{"message": "declined"}
		}
		body, err := json.Marshal(doc)
		if err != nil {
			rt.Fatalf("marshal: %v", err)
		}

		items, ok, err := decodeEnvelope[int](body)
		if err != nil {
			rt.Fatalf("unexpected error: %v", err)
		}
		wantOK := withData && !withError
		if ok != wantOK {
			rt.Fatalf("ok = %v, want %v for %s", ok, wantOK, body)
		}
		if ok {
			if items == nil {
				rt.Fatalf("accepted result must be non-nil")
			}
			if len(items) != len(data) {
				rt.Fatalf("got %d items, want %d", len(items), len(data))
			}
		} else if items != nil {
			rt.Fatalf("no-config result must carry no items")
		}
	})
}

func TestStore(t *testing.T) {
	s := NewStore[string]()
	_, ok := s.Load()
	assert.False(t, ok)

	items := []string{"a", "b"}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.Replace(Snapshot[string]{Items: items, FetchedAt: at, Source: "test"})

	// The store keeps its own copy.
	items[0] = "mutated"
	snap, ok := s.Load()
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, snap.Items)
	assert.Equal(t, at, snap.FetchedAt)
	assert.Equal(t, "test", snap.Source)
}

func TestStore_ConcurrentReaders(t *testing.T) {
	s := NewStore[int]()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if snap, ok := s.Load(); ok {
					// Every snapshot is internally consistent.
					if len(snap.Items) != snap.Items[0] {
						t.Errorf("torn snapshot: %v", snap.Items)
						return
					}
				}
			}
		}()
	}
	for n := 1; n <= 100; n++ {
		items := make([]int, n)
		for i := range items {
			items[i] = n
		}
		s.Replace(Snapshot[int]{Items: items})
	}
	wg.Wait()
}

func TestStaticSource(t *testing.T) {
	src := NewStaticSource([]string{"x"})
	items, ok, err := src.Fetch(t.Context())
	require.NoError(t, err)
	assert.True(t, ok)
	items[0] = "changed"

	again, _, _ := src.Fetch(t.Context())
	assert.Equal(t, []string{"x"}, again)
	assert.Equal(t, 2, src.Calls())
	assert.Equal(t, "static", src.Name())
}
