package fingerprint

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/nerrad567/readingd/internal/infrastructure/database"
	"github.com/nerrad567/readingd/migrations"
)

func TestSum(t *testing.T) {
	// sha256("") is a well-known constant.
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Sum(nil))

	a := Sum([]byte(`{"id":"x","readings":[]}`))
	b := Sum([]byte(`{"id": "x", "readings": []}`))
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b, "whitespace changes the fingerprint")
	assert.Equal(t, a, Sum([]byte(`{"id":"x","readings":[]}`)))
}

// StoreSuite runs the Store contract against one implementation.
type StoreSuite struct {
	suite.Suite
	newStore func(t *testing.T) Store
	store    Store
}

func (s *StoreSuite) SetupTest() {
	s.store = s.newStore(s.T())
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func(*testing.T) Store { return NewMemoryStore() }})
}

func TestSQLiteStoreSuite(t *testing.T) {
	suite.Run(t, &StoreSuite{newStore: func(t *testing.T) Store {
		db, err := database.Open(database.Config{Path: ":memory:", BusyTimeout: 1})
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
		require.NoError(t, db.Migrate(context.Background(), migrations.SQLite()))
		return NewSQLStore(db.DB, db.Dialect())
	}})
}

func (s *StoreSuite) TestRecordOnce() {
	ctx := context.Background()
	fp := Sum([]byte("payload"))

	first, err := s.store.Record(ctx, fp)
	s.Require().NoError(err)
	s.True(first)

	again, err := s.store.Record(ctx, fp)
	s.Require().NoError(err)
	s.False(again)

	other, err := s.store.Record(ctx, Sum([]byte("other payload")))
	s.Require().NoError(err)
	s.True(other)
}

func (s *StoreSuite) TestRecordEmpty() {
	_, err := s.store.Record(context.Background(), "")
	s.ErrorIs(err, ErrEmptyFingerprint)
}

func (s *StoreSuite) TestForget() {
	ctx := context.Background()
	fp := Sum([]byte("payload"))

	_, err := s.store.Record(ctx, fp)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Forget(ctx, fp))

	recorded, err := s.store.Record(ctx, fp)
	s.Require().NoError(err)
	s.True(recorded, "forgotten fingerprint records again")

	s.NoError(s.store.Forget(ctx, Sum([]byte("never recorded"))))
}

func (s *StoreSuite) TestClear() {
	ctx := context.Background()
	fps := []string{Sum([]byte("a")), Sum([]byte("b")), Sum([]byte("c"))}
	for _, fp := range fps {
		_, err := s.store.Record(ctx, fp)
		s.Require().NoError(err)
	}

	s.Require().NoError(s.store.Clear(ctx))

	for _, fp := range fps {
		recorded, err := s.store.Record(ctx, fp)
		s.Require().NoError(err)
		s.True(recorded)
	}
}

// TestConcurrentRecord verifies exactly one of many concurrent callers wins.
func (s *StoreSuite) TestConcurrentRecord() {
	ctx := context.Background()
	fp := Sum([]byte("contended"))
	const goroutines = 32

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.store.Record(ctx, fp)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
}
