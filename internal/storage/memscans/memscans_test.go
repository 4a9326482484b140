package memscans

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/ScanBox/internal/models"
	"github.com/BearBump/ScanBox/internal/storage"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func rec(id, tracking, serial string) *models.ScanRecord {
	return &models.ScanRecord{
		ID:             id,
		TrackingNumber: tracking,
		Carrier:        models.CarrierDeprisa,
		SerialNumber:   serial,
		ScannedAt:      time.Now().UTC(),
	}
}

func TestStorage_InsertGetDelete(t *testing.T) {
	st := New()
	ctx := context.Background()

	out, err := st.InsertUnique(ctx, rec("1", "987654321012", "A"))
	require.NoError(t, err)
	require.Equal(t, "1", out.ID)

	_, err = st.InsertUnique(ctx, rec("2", "987654321012", "A"))
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	_, err = st.InsertUnique(ctx, rec("3", "987654321012", "B"))
	require.NoError(t, err)
	require.Equal(t, 2, st.Len())

	got, err := st.GetByID(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "A", got.SerialNumber)

	require.NoError(t, st.DeleteByID(ctx, "1"))
	require.ErrorIs(t, st.DeleteByID(ctx, "1"), storage.ErrNotFound)
	_, err = st.GetByID(ctx, "1")
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = st.InsertUnique(ctx, rec("4", "987654321012", "A"))
	require.NoError(t, err)
}

func TestStorage_ReturnsCopies(t *testing.T) {
	st := New()
	ctx := context.Background()

	in := rec("1", "98765432101", "A")
	out, err := st.InsertUnique(ctx, in)
	require.NoError(t, err)

	in.SerialNumber = "mutated"
	out.SerialNumber = "mutated"

	got, err := st.GetByID(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "A", got.SerialNumber)
}

func TestStorage_CanceledContext(t *testing.T) {
	st := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := st.InsertUnique(ctx, rec("1", "98765432101", "A"))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, st.Len())
}

func TestStorage_ConcurrentInsertSameKey(t *testing.T) {
	defer goleak.VerifyNone(t)

	for _, n := range []int{2, 8, 64} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			st := New()
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				ok   int
				dups int
			)
			start := make(chan struct{})
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					_, err := st.InsertUnique(context.Background(), rec(fmt.Sprint(i), "98765432101", "SN"))
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						ok++
					} else if err == storage.ErrDuplicateKey {
						dups++
					}
				}(i)
			}
			close(start)
			wg.Wait()

			require.Equal(t, 1, ok)
			require.Equal(t, n-1, dups)
			require.Equal(t, 1, st.Len())
		})
	}
}
