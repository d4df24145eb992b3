package registry_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ILLUVRSE/training-pipeline/internal/pipelineerr"
	"github.com/ILLUVRSE/training-pipeline/internal/registry"
)

const noSuchKey = `<?xml version="1.0" encoding="UTF-8"?>
<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message><Key>%s</Key></Error>`

const listPage = `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
<Name>models</Name><Prefix>%s</Prefix><KeyCount>1</KeyCount><MaxKeys>1</MaxKeys>
<IsTruncated>%t</IsTruncated>%s
<Contents><Key>%s</Key><Size>1</Size></Contents>
</ListBucketResult>`

// fakeS3 serves the handful of path-style S3 calls the blob store makes.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	puts     []*http.Request
	prefixes []string
	pages    int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	w.Header().Set("Content-Type", "application/xml")

	switch {
	case r.Method == http.MethodGet && r.URL.Query().Get("list-type") == "2":
		prefix := r.URL.Query().Get("prefix")
		f.prefixes = append(f.prefixes, prefix)
		f.pages++
		if r.URL.Query().Get("continuation-token") == "" {
			fmt.Fprintf(w, listPage, prefix, true, "<NextContinuationToken>page-2</NextContinuationToken>", "vehicle/model.json.bak")
			return
		}
		fmt.Fprintf(w, listPage, prefix, false, "", "vehicle/model.json")
	case r.Method == http.MethodGet:
		b, ok := f.objects[bucket+"/"+key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, noSuchKey, key)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", fmt.Sprint(len(b)))
		w.Write(b)
	case r.Method == http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[bucket+"/"+key] = body
		f.puts = append(f.puts, r)
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newS3Store(t *testing.T) (*registry.S3BlobStore, *fakeS3) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_SESSION_TOKEN", "")
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := registry.NewS3BlobStore(context.Background(), registry.S3Options{Region: "us-east-1", Endpoint: srv.URL})
	require.NoError(t, err)
	return store, fake
}

func TestS3GetMissingKeyIsNotFound(t *testing.T) {
	store, _ := newS3Store(t)

	_, err := store.Get(context.Background(), "models", "vehicle/model.json")
	assert.ErrorIs(t, err, registry.ErrNotFound)

	_, err = registry.New(store).Load(context.Background(), slot)
	assert.ErrorIs(t, err, pipelineerr.ErrDataAccess)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestS3ListFollowsPages(t *testing.T) {
	store, fake := newS3Store(t)

	keys, err := store.List(context.Background(), "models", "vehicle/model.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"vehicle/model.json.bak", "vehicle/model.json"}, keys)
	assert.Equal(t, 2, fake.pages)
	assert.Equal(t, []string{"vehicle/model.json", "vehicle/model.json"}, fake.prefixes)

	ok, err := registry.New(store).Exists(context.Background(), slot)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestS3SaveUploadsAndReadsBack(t *testing.T) {
	store, fake := newS3Store(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"format":"x"}`), 0o644))

	require.NoError(t, registry.New(store).Save(ctx, path, slot, false))
	require.Len(t, fake.puts, 1)
	assert.Equal(t, "/models/vehicle/model.json", fake.puts[0].URL.Path)
	assert.Equal(t, "AES256", fake.puts[0].Header.Get("X-Amz-Server-Side-Encryption"))
	assert.Contains(t, string(fake.objects["models/vehicle/model.json"]), `{"format":"x"}`)

	b, err := store.Get(ctx, "models", "vehicle/model.json")
	require.NoError(t, err)
	assert.Contains(t, string(b), `{"format":"x"}`)
}
