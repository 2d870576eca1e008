package testing

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const StorageBucket = "bpm-test"

// StoredObject is one PUT received by a [StorageServer].
type StoredObject struct {
	Path          string
	ContentType   string
	ContentLength int64
	SignedHeaders string
	Body          []byte
}

// StorageServer is an httptest stand-in for an S3 compatible bucket accepting presigned PUTs.
type StorageServer struct {
	*httptest.Server

	mu      sync.Mutex
	objects []StoredObject
	status  int
}

// NewStorageServer starts a storage server that answers every PUT with status.
func NewStorageServer(t *testing.T, status int) *StorageServer {
	t.Helper()

	s := &StorageServer{status: status}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, _ := io.ReadAll(r.Body)

		s.mu.Lock()
		s.objects = append(s.objects, StoredObject{
			Path:          r.URL.Path,
			ContentType:   r.Header.Get("Content-Type"),
			ContentLength: r.ContentLength,
			SignedHeaders: r.URL.Query().Get("X-Amz-SignedHeaders"),
			Body:          body,
		})
		code := s.status
		s.mu.Unlock()

		if code >= 300 {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(code)
			io.WriteString(w, "<Error><Code>AccessDenied</Code></Error>")
			return
		}
		w.WriteHeader(code)
	}))
	t.Cleanup(s.Close)
	return s
}

// Objects returns a copy of the PUTs received so far.
func (s *StorageServer) Objects() []StoredObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StoredObject(nil), s.objects...)
}

// PresignPut mints a SigV4 presigned PUT URL for key that binds contentType, the way the backend does.
func (s *StorageServer) PresignPut(t *testing.T, key, contentType string) string {
	t.Helper()

	client := s3.New(s3.Options{
		Region:       "auto",
		BaseEndpoint: aws.String(s.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("test-access-key", "test-secret-key", ""),
	})

	out, err := s3.NewPresignClient(client).PresignPutObject(context.Background(), &s3.PutObjectInput{
		Bucket:      aws.String(StorageBucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(o *s3.PresignOptions) {
		o.Expires = 15 * time.Minute
	})
	if err != nil {
		t.Fatalf("failed to presign PUT: %v", err)
	}
	return out.URL
}
