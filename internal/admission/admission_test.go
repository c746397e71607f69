package admission

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/AppachchiCodes/The-Human-Monument/internal/config"
	"github.com/AppachchiCodes/The-Human-Monument/internal/model"
	"github.com/AppachchiCodes/The-Human-Monument/internal/shortid"
	"github.com/AppachchiCodes/The-Human-Monument/internal/spiral"
	"github.com/AppachchiCodes/The-Human-Monument/internal/storage"
)

var pngSig = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

func mp3Bytes() []byte {
	return append([]byte("ID3"), make([]byte, 16)...)
}

func testConfig() *config.Config {
	return &config.Config{
		MaxTextChars:    5000,
		MaxImageBytes:   5 << 20,
		MaxAudioBytes:   10 << 20,
		MaxDrawingBytes: 2 << 20,
	}
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// fakeBlobs is an in-memory BlobStore with failure injection.
type fakeBlobs struct {
	mu         sync.Mutex
	objects    map[string][]byte
	puts       int
	failPut    bool
	failDelete bool
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: make(map[string][]byte)}
}

func (f *fakeBlobs) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut {
		return errors.New("blob store down")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.objects[key] = data
	f.puts++
	return nil
}

func (f *fakeBlobs) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete {
		return errors.New("blob store down")
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeBlobs) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type fakeCleanup struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeCleanup) EnqueueCleanup(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return nil
}

// failingStore wraps a Store and fails Insert a configurable way.
type failingStore struct {
	storage.Store
	insertErr error
}

func (f *failingStore) Insert(ctx context.Context, c *model.Contribution) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.Store.Insert(ctx, c)
}

func newService(store storage.Store, blobs BlobStore, cleanup CleanupEnqueuer, opts ...Option) *Service {
	return New(store, blobs, cleanup, testConfig(), testLogger(), opts...)
}

func TestSubmitTextFirstTileAtOrigin(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newService(store, newFakeBlobs(), nil)

	c, err := svc.Submit(context.Background(), Request{
		Kind:       model.KindText,
		Content:    "  hello world  ",
		SourceAddr: "203.0.113.9",
	})
	require.NoError(t, err)
	require.Equal(t, 0, c.X)
	require.Equal(t, 0, c.Y)
	require.Equal(t, "hello world", c.Content, "content is trimmed")
	require.True(t, shortid.Valid(c.PublicCode))
	require.Equal(t, model.StatusApproved, c.Status)
}

func TestSubmitFollowsSpiralOrder(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newService(store, newFakeBlobs(), nil)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		c, err := svc.Submit(ctx, Request{Kind: model.KindText, Content: fmt.Sprintf("tile %d", i)})
		require.NoError(t, err)
		want := spiral.PositionAt(i)
		require.Equal(t, want, spiral.Position{X: c.X, Y: c.Y}, "tile %d", i)
	}
}

func TestSubmitRoundTrip(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newService(store, newFakeBlobs(), nil)
	ctx := context.Background()

	created, err := svc.Submit(ctx, Request{Kind: model.KindText, Content: "remember me"})
	require.NoError(t, err)

	fetched, err := store.GetByCode(ctx, created.PublicCode)
	require.NoError(t, err)
	require.Equal(t, created.X, fetched.X)
	require.Equal(t, created.Y, fetched.Y)
	require.Equal(t, created.ID, fetched.ID)
}

func TestSubmitValidationRejectsBeforeSideEffects(t *testing.T) {
	cases := []struct {
		name string
		req  Request
	}{
		{"unknown kind", Request{Kind: "VIDEO", Content: "x"}},
		{"empty text", Request{Kind: model.KindText, Content: "   "}},
		{"missing image", Request{Kind: model.KindImage}},
		{"missing audio", Request{Kind: model.KindAudio}},
		{"missing drawing", Request{Kind: model.KindDrawing}},
		{"drawing not a data url", Request{Kind: model.KindDrawing, Drawing: "plainstring"}},
		{"drawing bad base64", Request{Kind: model.KindDrawing, Drawing: "data:image/png;base64,!!!"}},
		{"image wrong type", Request{Kind: model.KindImage, Data: []byte("just some text")}},
		{"audio wrong type", Request{Kind: model.KindAudio, Data: pngSig}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			blobs := newFakeBlobs()
			svc := newService(store, blobs, nil)

			_, err := svc.Submit(context.Background(), tc.req)
			require.ErrorIs(t, err, ErrValidation)
			require.Zero(t, blobs.puts, "no blob may be written")
			occ, err := store.OccupiedPositions(context.Background())
			require.NoError(t, err)
			require.Empty(t, occ, "no record may be persisted")
		})
	}
}

func TestSubmitTextTooLong(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := newService(store, newFakeBlobs(), nil)
	long := make([]rune, testConfig().MaxTextChars+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := svc.Submit(context.Background(), Request{Kind: model.KindText, Content: string(long)})
	require.ErrorIs(t, err, ErrValidation)
}

func TestSubmitImageStoresBlob(t *testing.T) {
	store := storage.NewMemoryStore()
	blobs := newFakeBlobs()
	svc := newService(store, blobs, nil)

	c, err := svc.Submit(context.Background(), Request{Kind: model.KindImage, Data: pngSig})
	require.NoError(t, err)
	require.NotEmpty(t, c.ObjectKey)
	require.Contains(t, c.ObjectKey, "images/")
	require.Equal(t, 1, blobs.count())
}

func TestSubmitDrawingDecodesDataURL(t *testing.T) {
	store := storage.NewMemoryStore()
	blobs := newFakeBlobs()
	svc := newService(store, blobs, nil)

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngSig)
	c, err := svc.Submit(context.Background(), Request{Kind: model.KindDrawing, Drawing: dataURL})
	require.NoError(t, err)
	require.Contains(t, c.ObjectKey, "drawings/")
	require.Equal(t, pngSig, blobs.objects[c.ObjectKey], "stored blob is the decoded payload")
}

func TestSubmitAudioAccepted(t *testing.T) {
	store := storage.NewMemoryStore()
	blobs := newFakeBlobs()
	svc := newService(store, blobs, nil)

	c, err := svc.Submit(context.Background(), Request{Kind: model.KindAudio, Data: mp3Bytes()})
	require.NoError(t, err)
	require.Contains(t, c.ObjectKey, "audio/")
	require.Equal(t, 1, blobs.count())
}

func TestConcurrentSubmissionsGetDistinctPositions(t *testing.T) {
	const n = 16
	store := storage.NewMemoryStore()
	// Every lost race implies some other submission committed, so n
	// attempts are always enough for n submitters.
	svc := newService(store, newFakeBlobs(), nil, WithAllocateAttempts(n))
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan spiral.Position, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := svc.Submit(ctx, Request{Kind: model.KindText, Content: fmt.Sprintf("tile %d", i)})
			if err != nil {
				errs <- err
				return
			}
			results <- spiral.Position{X: c.X, Y: c.Y}
		}(i)
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("submission failed: %v", err)
	}

	got := make(map[spiral.Position]struct{}, n)
	for pos := range results {
		if _, dup := got[pos]; dup {
			t.Fatalf("duplicate position %+v", pos)
		}
		got[pos] = struct{}{}
	}
	require.Len(t, got, n)
	for i := 0; i < n; i++ {
		require.Contains(t, got, spiral.PositionAt(i), "spiral index %d must be occupied", i)
	}
}

func TestCompensatingCleanupDeletesBlob(t *testing.T) {
	store := &failingStore{Store: storage.NewMemoryStore(), insertErr: errors.New("db down")}
	blobs := newFakeBlobs()
	svc := newService(store, blobs, nil)

	_, err := svc.Submit(context.Background(), Request{Kind: model.KindImage, Data: pngSig})
	require.Error(t, err)
	require.Equal(t, 1, blobs.puts, "blob was written before the failure")
	require.Zero(t, blobs.count(), "blob must be deleted after the failure")
}

func TestCompensatingCleanupFallsBackToQueue(t *testing.T) {
	store := &failingStore{Store: storage.NewMemoryStore(), insertErr: errors.New("db down")}
	blobs := newFakeBlobs()
	blobs.failDelete = true
	cleanup := &fakeCleanup{}
	svc := newService(store, blobs, cleanup)

	_, err := svc.Submit(context.Background(), Request{Kind: model.KindImage, Data: pngSig})
	require.Error(t, err)
	require.Len(t, cleanup.keys, 1, "failed delete must be handed to the cleanup queue")
}

func TestAllocationExhaustionSurfacesError(t *testing.T) {
	store := &failingStore{Store: storage.NewMemoryStore(), insertErr: storage.ErrPositionTaken}
	svc := newService(store, newFakeBlobs(), nil)

	_, err := svc.Submit(context.Background(), Request{Kind: model.KindText, Content: "never lands"})
	require.ErrorIs(t, err, ErrAllocationExhausted)
}

func TestBlobPutFailureAborts(t *testing.T) {
	store := storage.NewMemoryStore()
	blobs := newFakeBlobs()
	blobs.failPut = true
	svc := newService(store, blobs, nil)

	_, err := svc.Submit(context.Background(), Request{Kind: model.KindImage, Data: pngSig})
	require.Error(t, err)
	occ, oerr := store.OccupiedPositions(context.Background())
	require.NoError(t, oerr)
	require.Empty(t, occ, "no record without its payload")
}
