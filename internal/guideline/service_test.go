package guideline

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/TobiSchelling/adcraft/internal/creative"
	"github.com/TobiSchelling/adcraft/internal/database"
)

func TestMain(m *testing.M) {
	// genai links in opencensus, whose view worker starts at init.
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

func openStore(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedProject(t *testing.T, db *database.DB, project string) {
	t.Helper()
	ctx := context.Background()
	for _, b := range scenarioD() {
		_, err := db.ImportBatch(ctx, project, b)
		require.NoError(t, err)
	}
	require.NoError(t, db.UpsertBrandIdentity(ctx, creative.BrandIdentity{ProjectID: project, Mood: "energetic"}))
}

func TestServiceGeneratePersists(t *testing.T) {
	db := openStore(t)
	seedProject(t, db, "p1")
	svc := NewService(db, NewExtractor(&mockProvider{response: validResponse}, Options{}, nil), nil)
	ctx := context.Background()

	g, err := svc.Generate(ctx, "p1")
	require.NoError(t, err)
	assert.NotZero(t, g.ID)
	assert.Equal(t, 4, g.PerformanceSignals.FrequencyScore)

	active, err := svc.Active(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, g.ID, active.ID)
	assert.InDelta(t, 20.0, active.PerformanceSignals.LongevityDays, 1e-9)
}

func TestServiceFailureKeepsPreviousGuideline(t *testing.T) {
	db := openStore(t)
	seedProject(t, db, "p1")
	ctx := context.Background()

	provider := &mockProvider{response: validResponse}
	svc := NewService(db, NewExtractor(provider, Options{}, nil), nil)
	first, err := svc.Generate(ctx, "p1")
	require.NoError(t, err)

	provider.mu.Lock()
	provider.response = "not json"
	provider.mu.Unlock()

	_, err = svc.Generate(ctx, "p1")
	var contract *creative.OracleContractError
	require.ErrorAs(t, err, &contract)

	active, err := svc.Active(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, active.ID)

	history, err := db.ListGuidelines(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestServiceNoDataPersistsNothing(t *testing.T) {
	db := openStore(t)
	svc := NewService(db, NewExtractor(&mockProvider{response: validResponse}, Options{}, nil), nil)

	_, err := svc.Generate(context.Background(), "empty")
	var insufficient *creative.InsufficientDataError
	require.ErrorAs(t, err, &insufficient)

	_, err = svc.Active(context.Background(), "empty")
	assert.True(t, errors.Is(err, creative.ErrNotFound))
}

func TestServiceSingleFlightPerProject(t *testing.T) {
	db := openStore(t)
	seedProject(t, db, "p1")

	provider := &mockProvider{
		response: validResponse,
		started:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	svc := NewService(db, NewExtractor(provider, Options{Timeout: 5 * time.Second}, nil), nil)

	const callers = 8
	results := make([]*creative.VisualGuideline, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = svc.Generate(context.Background(), "p1")
	}()
	<-provider.started

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Generate(context.Background(), "p1")
		}(i)
	}
	// Give the followers time to join the in-flight call.
	time.Sleep(100 * time.Millisecond)
	close(provider.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].ID, results[i].ID)
	}
	assert.Equal(t, 1, provider.callCount())

	history, err := db.ListGuidelines(context.Background(), "p1", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestServiceProjectsAreIndependent(t *testing.T) {
	db := openStore(t)
	seedProject(t, db, "p1")
	seedProject(t, db, "p2")
	provider := &mockProvider{response: validResponse}
	svc := NewService(db, NewExtractor(provider, Options{}, nil), nil)

	var wg sync.WaitGroup
	for _, p := range []string{"p1", "p2"} {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			_, err := svc.Generate(context.Background(), p)
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()

	assert.Equal(t, 2, provider.callCount())
	for _, p := range []string{"p1", "p2"} {
		g, err := svc.Active(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, p, g.ProjectID)
	}
}
