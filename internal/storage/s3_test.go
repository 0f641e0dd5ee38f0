package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Rogue-Bear-Innovations/buckethaca-back/internal/config"
)

type putRequest struct {
	method      string
	path        string
	contentType string
	body        []byte
}

func TestS3Upload(t *testing.T) {
	var (
		mu  sync.Mutex
		got []putRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, putRequest{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			body:        body,
		})
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s, err := NewS3(&config.Config{
		S3Bucket:    "images",
		S3Region:    "us-east-1",
		S3Endpoint:  srv.URL,
		S3AccessKey: "minio",
		S3SecretKey: "minio123",
	}, zap.NewNop().Sugar())
	require.NoError(t, err)

	base, err := s.Upload(context.Background(), []byte("png-bytes"), "abc.png", "image/png")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/images", base)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, http.MethodPut, got[0].method)
	assert.Equal(t, "/images/abc.png", got[0].path)
	assert.Equal(t, "image/png", got[0].contentType)
	assert.Equal(t, []byte("png-bytes"), got[0].body)
}

func TestS3UploadFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`<Error><Code>AccessDenied</Code><Message>denied</Message></Error>`))
	}))
	defer srv.Close()

	s, err := NewS3(&config.Config{
		S3Bucket:    "images",
		S3Region:    "us-east-1",
		S3Endpoint:  srv.URL,
		S3AccessKey: "minio",
		S3SecretKey: "wrong",
	}, zap.NewNop().Sugar())
	require.NoError(t, err)

	_, err = s.Upload(context.Background(), []byte("x"), "abc.png", "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{
			name: "explicit",
			cfg:  config.Config{S3PublicURL: "https://cdn.example.com/", S3Endpoint: "http://minio:9000", S3Bucket: "b"},
			want: "https://cdn.example.com",
		},
		{
			name: "custom endpoint",
			cfg:  config.Config{S3Endpoint: "http://minio:9000", S3Bucket: "b"},
			want: "http://minio:9000/b",
		},
		{
			name: "aws",
			cfg:  config.Config{S3Bucket: "b", S3Region: "us-east-2"},
			want: "https://b.s3.us-east-2.amazonaws.com",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, publicURL(&tt.cfg))
		})
	}
}
