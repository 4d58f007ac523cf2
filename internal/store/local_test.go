package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehdermann/ontomed/internal/nlp"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(filepath.Join(t.TempDir(), "nested", "vocab.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLocalStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := nlp.DynamicIntent{
		Name:             "consulta_glicemia",
		Keywords:         []string{"glicemia", "verificar glicemia"},
		Patterns:         []string{"verificar {exame}"},
		ExpectedEntities: []string{"EXAME"},
		Description:      "consulta de exames de glicemia",
	}
	require.NoError(t, s.SaveRegistration(ctx, first))
	require.NoError(t, s.SaveRegistration(ctx, nlp.DynamicIntent{
		Name:     "ajuda_geral",
		Keywords: []string{"ajuda"},
	}))

	got, err := s.LoadRegistrations(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, first, got[0])
	assert.Equal(t, "ajuda_geral", got[1].Name)
}

func TestLocalStoreUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRegistration(ctx, nlp.DynamicIntent{
		Name:     "consulta_glicemia",
		Keywords: []string{"glicemia"},
	}))
	require.NoError(t, s.SaveRegistration(ctx, nlp.DynamicIntent{
		Name:     "consulta_glicemia",
		Keywords: []string{"glicemia", "exame de glicemia"},
	}))

	got, err := s.LoadRegistrations(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1, "re-registration replaces the payload")
	assert.Equal(t, []string{"glicemia", "exame de glicemia"}, got[0].Keywords)

	var count int
	require.NoError(t, s.db.QueryRow(
		`SELECT COUNT(*) FROM intent_keywords WHERE intent = ?`, "consulta_glicemia",
	).Scan(&count))
	assert.Equal(t, 2, count, "keyword rows accumulate without duplicates")
}

func TestLocalStoreSkipsCorruptPayloads(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRegistration(ctx, nlp.DynamicIntent{Name: "valida"}))
	_, err := s.db.Exec(
		`INSERT INTO dynamic_intents (name, description, payload, updated_at)
		 VALUES ('quebrada', '', '{not json', CURRENT_TIMESTAMP)`)
	require.NoError(t, err)

	got, err := s.LoadRegistrations(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "valida", got[0].Name)
}

func TestLocalStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.db")
	ctx := context.Background()

	s, err := NewLocalStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveRegistration(ctx, nlp.DynamicIntent{Name: "persistida"}))
	require.NoError(t, s.Close())

	s, err = NewLocalStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.LoadRegistrations(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "persistida", got[0].Name)
}
