package directory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/school-atlas/internal/cache"
	"github.com/sells-group/school-atlas/internal/model"
)

func fixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

// fakePages serves canned page text by URL and counts requests.
type fakePages struct {
	mu     sync.Mutex
	bodies map[string]string
	calls  map[string]int
}

func newFakePages(bodies map[string]string) *fakePages {
	return &fakePages{bodies: bodies, calls: make(map[string]int)}
}

func (f *fakePages) FetchText(_ context.Context, req cache.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.Key()]++
	body, ok := f.bodies[req.Key()]
	if !ok {
		return "", errors.New("fetcher: http 404 from " + req.Key())
	}
	return body, nil
}

func (f *fakePages) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Geocode(ctx context.Context, street, city, state string) model.Field[model.Coordinate] {
	args := m.Called(ctx, street, city, state)
	return args.Get(0).(model.Field[model.Coordinate])
}
