package cart

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"weft-mcp/internal/catalog"
	"weft-mcp/internal/model"
)

const skipIntegrationTests = "WEFT_SKIP_INTEGRATION_TESTS"

// PostgresBackendSuite runs the cart backend and registry against a real
// PostgreSQL container.
type PostgresBackendSuite struct {
	suite.Suite
	pgContainer *postgres.PostgresContainer
	dbPool      *pgxpool.Pool
	backend     *PostgresBackend
	ctx         context.Context
}

func (s *PostgresBackendSuite) SetupSuite() {
	s.ctx = context.Background()
	var err error

	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:17.5-alpine",
		postgres.WithDatabase("carts"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to run PostgreSQL container")

	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err, "Failed to get connection string from container")

	require.NoError(s.T(), Migrate(connStr), "Failed to apply migrations")

	s.dbPool, err = pgxpool.New(s.ctx, connStr)
	require.NoError(s.T(), err, "Failed to create pgxpool")
	require.NoError(s.T(), s.dbPool.Ping(s.ctx), "Failed to ping PostgreSQL")

	s.backend = NewPostgresBackend(s.dbPool)
}

func (s *PostgresBackendSuite) TearDownSuite() {
	if s.dbPool != nil {
		s.dbPool.Close()
	}
	if s.pgContainer != nil {
		if err := s.pgContainer.Terminate(s.ctx); err != nil {
			s.T().Logf("failed to terminate PostgreSQL container: %v", err)
		}
	}
}

func (s *PostgresBackendSuite) SetupTest() {
	_, err := s.dbPool.Exec(s.ctx, "TRUNCATE TABLE cart_sessions CASCADE")
	require.NoError(s.T(), err, "Failed to truncate cart tables")
}

func TestPostgresBackendIntegration(t *testing.T) {
	if os.Getenv(skipIntegrationTests) == "1" {
		t.Skip("Skipping integration tests based on " + skipIntegrationTests + " env var")
	}
	suite.Run(t, new(PostgresBackendSuite))
}

func (s *PostgresBackendSuite) TestMigrateIsRepeatable() {
	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)
	s.NoError(Migrate(connStr))
}

func (s *PostgresBackendSuite) TestLoadUnknownSession() {
	c, ok, err := s.backend.Load(s.ctx, "missing")
	s.Require().NoError(err)
	s.False(ok)
	s.Equal(0, c.Len())
}

func (s *PostgresBackendSuite) TestSaveAndLoadPreservesOrder() {
	c := &Cart{Lines: []Line{
		{Ref: catalog.Ref{Store: "b", Index: 3}, Product: catalog.Product{Name: "Rice", Price: "5"}, Store: "b", Quantity: 1},
		{Ref: catalog.Ref{Store: "a", Index: 0}, Product: catalog.Product{Name: "Almonds", Price: "10", Image: "x.png"}, Store: "a", Quantity: 2},
	}}
	s.Require().NoError(s.backend.Save(s.ctx, "s1", c))

	loaded, ok, err := s.backend.Load(s.ctx, "s1")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(c.Lines, loaded.Lines)

	// Save replaces the previous lines.
	c.Remove(0)
	s.Require().NoError(s.backend.Save(s.ctx, "s1", c))
	loaded, _, err = s.backend.Load(s.ctx, "s1")
	s.Require().NoError(err)
	s.Require().Len(loaded.Lines, 1)
	s.Equal("Almonds", loaded.Lines[0].Product.Name)
}

func (s *PostgresBackendSuite) TestClearedSessionStaysRegistered() {
	s.Require().NoError(s.backend.Save(s.ctx, "s1", &Cart{}))

	c, ok, err := s.backend.Load(s.ctx, "s1")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(0, c.Len())

	sessions, err := s.backend.Sessions(s.ctx)
	s.Require().NoError(err)
	s.Equal([]SessionInfo{{ID: "s1", Lines: 0}}, sessions)
}

func (s *PostgresBackendSuite) TestRegistryOverPostgres() {
	products := &fakeCatalog{products: map[string][]catalog.Product{
		"store": {
			{Name: "Almonds", Price: "10"},
			{Name: "Rice", Price: "5"},
		},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := NewRegistry(s.backend, products, catalog.DisplayOptions{Currency: "₪"}, logger)

	added, err := r.AddItem(s.ctx, "s1", "store:0", 2)
	s.Require().NoError(err)
	s.Equal("20", added.Total.String())

	added, err = r.AddItem(s.ctx, "s1", "store:1", 1)
	s.Require().NoError(err)
	s.Equal("25", added.Total.String())

	removed, err := r.RemoveItem(s.ctx, "s1", "store:0")
	s.Require().NoError(err)
	s.Equal("5", removed.Total.String())
	s.Equal(1, removed.LineCount)

	_, err = r.RemoveItem(s.ctx, "other", "store:1")
	assert.ErrorIs(s.T(), err, model.ErrItemNotInCart)

	d, err := r.Diagnostics(s.ctx, "s1")
	s.Require().NoError(err)
	s.Equal(1, d.TotalSessions)
	s.Empty(d.OtherSessions)
}

func (s *PostgresBackendSuite) TestConcurrentUpdatesAcrossReplicas() {
	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	// Two registries over separate pools behave like two server replicas.
	otherPool, err := pgxpool.New(s.ctx, connStr)
	s.Require().NoError(err)
	defer otherPool.Close()

	products := &fakeCatalog{products: map[string][]catalog.Product{
		"store": {{Name: "Almonds", Price: "10"}},
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	replicas := []*Registry{
		NewRegistry(s.backend, products, catalog.DisplayOptions{}, logger),
		NewRegistry(NewPostgresBackend(otherPool), products, catalog.DisplayOptions{}, logger),
	}

	const addsPerReplica = 10
	var wg sync.WaitGroup
	errs := make(chan error, 2*addsPerReplica)
	for _, r := range replicas {
		for range addsPerReplica {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := r.AddItem(s.ctx, "shared", "store:0", 1); err != nil {
					errs <- err
				}
			}()
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	view, err := replicas[0].View(s.ctx, "shared")
	s.Require().NoError(err)
	s.Require().Len(view.Items, 1)
	s.Equal(2*addsPerReplica, view.Items[0].Quantity)
}

func (s *PostgresBackendSuite) TestRejectedUpdateRollsBack() {
	err := s.backend.Update(s.ctx, "new", func(c *Cart, known bool) error {
		s.False(known)
		c.Lines = append(c.Lines, Line{Ref: catalog.Ref{Store: "a", Index: 0}, Store: "a", Quantity: 1})
		return model.NewItemNotInCartError("a:0")
	})
	s.ErrorIs(err, model.ErrItemNotInCart)

	_, ok, err := s.backend.Load(s.ctx, "new")
	s.Require().NoError(err)
	s.False(ok)
}
