package ecf_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appecf "github.com/jhoicas/ecf-api/internal/application/ecf"
	"github.com/jhoicas/ecf-api/internal/domain"
	"github.com/jhoicas/ecf-api/internal/domain/entity"
	"github.com/jhoicas/ecf-api/internal/infrastructure/memory"
)

func TestSequenceAllocator_PrimerNumero(t *testing.T) {
	a := appecf.NewSequenceAllocator(memory.NewSequenceStore(), 0, zerolog.Nop())

	n, err := a.Allocate(context.Background(), "01")
	require.NoError(t, err)
	assert.Equal(t, "E0100000001", n)

	n, err = a.Allocate(context.Background(), "31")
	require.NoError(t, err)
	assert.Equal(t, "E3100000001", n, "cada tipo tiene su propio contador")
}

func TestSequenceAllocator_ConcurrenteSinDuplicados(t *testing.T) {
	store := memory.NewSequenceStore()
	a := appecf.NewSequenceAllocator(store, 8, zerolog.Nop())

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers []string
		failed  int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := a.Allocate(context.Background(), "01")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// con reintentos acotados una asignación puede agotarse, nunca duplicarse
				assert.ErrorIs(t, err, domain.ErrAllocationFailed)
				failed++
				return
			}
			numbers = append(numbers, num)
		}()
	}
	wg.Wait()

	seen := make(map[string]bool, len(numbers))
	for _, num := range numbers {
		assert.False(t, seen[num], "número repetido %s", num)
		seen[num] = true
	}
	assert.Equal(t, n, len(numbers)+failed)

	// el orden de emisión es estrictamente creciente
	issued := store.Issued()
	assert.Len(t, issued, len(numbers))
	assert.True(t, sort.StringsAreSorted(issued))
	for i := 1; i < len(issued); i++ {
		assert.NotEqual(t, issued[i-1], issued[i])
	}
}

func TestSequenceAllocator_TipoInvalido(t *testing.T) {
	store := memory.NewSequenceStore()
	a := appecf.NewSequenceAllocator(store, 8, zerolog.Nop())

	for _, docType := range []string{"", "1", "A1", "001"} {
		_, err := a.Allocate(context.Background(), docType)
		var verr *domain.ValidationError
		require.True(t, errors.As(err, &verr), "tipo %q", docType)
		assert.True(t, verr.Has("documentType"))
	}
	assert.Empty(t, store.Issued())
}

func TestSequenceAllocator_ConflictoPersistenteAgotaReintentos(t *testing.T) {
	a := appecf.NewSequenceAllocator(conflictingStore{}, 8, zerolog.Nop())

	_, err := a.Allocate(context.Background(), "01")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAllocationFailed)
}

func TestSequenceAllocator_SecuenciaAgotada(t *testing.T) {
	store := memory.NewSequenceStore()
	a := appecf.NewSequenceAllocator(store, 1, zerolog.Nop())

	for i := 1; i <= 9; i++ {
		_, err := a.Allocate(context.Background(), "02")
		require.NoError(t, err)
	}
	_, err := a.Allocate(context.Background(), "02")
	assert.ErrorIs(t, err, domain.ErrAllocationFailed)
	assert.Len(t, store.Issued(), 9)
}

// conflictingStore siempre pierde la carrera.
type conflictingStore struct{}

func (conflictingStore) Get(_ context.Context, documentType string) (*entity.SequenceCounter, error) {
	return &entity.SequenceCounter{DocumentType: documentType, Next: 1}, nil
}

func (conflictingStore) CompareAndSwap(context.Context, string, int64, int64, string) error {
	return domain.ErrAllocationConflict
}
