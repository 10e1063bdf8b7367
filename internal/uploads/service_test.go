package uploads

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/hackrx-gateway/pkg/storage"
)

var testLimits = config.UploadConfig{MaxBytes: 1024, AllowedExtensions: []string{".pdf", ".docx"}}

type fakeStore struct {
	objects []storage.Object
	err     error
}

func (f *fakeStore) Put(_ context.Context, obj storage.Object) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.objects = append(f.objects, obj)
	return "https://docs.s3.us-east-1.amazonaws.com/" + obj.Key, nil
}

type fakeRegistry struct {
	records   []Record
	insertErr error
	listErr   error
	gotLimit  int
	gotOffset int
}

func (f *fakeRegistry) Insert(_ context.Context, rec *Record) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.records = append(f.records, *rec)
	return nil
}

func (f *fakeRegistry) List(_ context.Context, limit, offset int) ([]Record, error) {
	f.gotLimit, f.gotOffset = limit, offset
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.records, nil
}

var keyPattern = regexp.MustCompile(`^1700000000123-[0-9a-f]{12}\.pdf$`)

func newTestService(store ObjectStore, reg Registry) (*Service, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(store, reg, testLimits, m)
	svc.now = func() time.Time { return time.UnixMilli(1700000000123) }
	return svc, m
}

func TestUpload_StoresAndRecords(t *testing.T) {
	store := &fakeStore{}
	reg := &fakeRegistry{}
	svc, m := newTestService(store, reg)

	ctx := logger.WithRequestID(context.Background(), "req_up")
	rec, err := svc.Upload(ctx, File{Name: "policy.pdf", ContentType: "application/pdf", Data: []byte("%PDF")})
	require.NoError(t, err)

	require.Regexp(t, keyPattern, rec.Key)
	require.Equal(t, "https://docs.s3.us-east-1.amazonaws.com/"+rec.Key, rec.URL)
	require.Len(t, store.objects, 1)
	require.Equal(t, "application/pdf", store.objects[0].ContentType)

	require.Len(t, reg.records, 1)
	require.Equal(t, "req_up", reg.records[0].RequestID)
	require.Equal(t, int64(4), reg.records[0].Size)
	require.Equal(t, 1.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues("success")))
}

func TestUpload_UniqueKeys(t *testing.T) {
	store := &fakeStore{}
	svc, _ := newTestService(store, nil)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		rec, err := svc.Upload(context.Background(), File{Name: "p.pdf", Data: []byte("x")})
		require.NoError(t, err)
		require.False(t, seen[rec.Key])
		seen[rec.Key] = true
	}
}

func TestUpload_Rejected(t *testing.T) {
	store := &fakeStore{}
	svc, m := newTestService(store, nil)

	_, err := svc.Upload(context.Background(), File{Name: "run.exe", Data: []byte("x")})
	require.ErrorIs(t, err, apperrors.ErrUnsupportedFileType)

	_, err = svc.Upload(context.Background(), File{Name: "big.pdf", Data: make([]byte, 1025)})
	require.ErrorIs(t, err, apperrors.ErrPayloadTooLarge)

	require.Empty(t, store.objects)
	require.Equal(t, 2.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues("rejected")))
}

func TestUpload_StorageFailure(t *testing.T) {
	svc, m := newTestService(&fakeStore{err: errors.New("AccessDenied")}, nil)

	_, err := svc.Upload(context.Background(), File{Name: "p.pdf", Data: []byte("x")})
	require.ErrorIs(t, err, apperrors.ErrStorageFailed)
	require.Equal(t, map[string]any{"error": "Failed to upload file"}, apperrors.Body(err))
	require.Equal(t, 1.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues("error")))
}

func TestUpload_RegistryFailureStillSucceeds(t *testing.T) {
	svc, _ := newTestService(&fakeStore{}, &fakeRegistry{insertErr: errors.New("db down")})

	rec, err := svc.Upload(context.Background(), File{Name: "p.pdf", Data: []byte("x")})
	require.NoError(t, err)
	require.NotEmpty(t, rec.URL)
}

func TestList(t *testing.T) {
	reg := &fakeRegistry{records: []Record{{Key: "a.pdf"}}}
	svc, _ := newTestService(&fakeStore{}, reg)
	require.True(t, svc.HasRegistry())

	recs, err := svc.List(context.Background(), 0, -5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, defaultListLimit, reg.gotLimit)
	require.Equal(t, 0, reg.gotOffset)

	_, err = svc.List(context.Background(), 10_000, 20)
	require.NoError(t, err)
	require.Equal(t, maxListLimit, reg.gotLimit)
	require.Equal(t, 20, reg.gotOffset)

	reg.listErr = errors.New("timeout")
	_, err = svc.List(context.Background(), 10, 0)
	require.ErrorIs(t, err, apperrors.ErrInternal)
}

func TestList_NoRegistry(t *testing.T) {
	svc, _ := newTestService(&fakeStore{}, nil)
	require.False(t, svc.HasRegistry())

	_, err := svc.List(context.Background(), 10, 0)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	require.Equal(t, 404, apperrors.HTTPStatusCode(err))
}
