package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/desertthunder/bpmx/internal/shared"
	tu "github.com/desertthunder/bpmx/internal/testing"
)

func TestObjectWriter(t *testing.T) {
	t.Run("Put Sends Declared Content Type To Presigned URL", func(t *testing.T) {
		storage := tu.NewStorageServer(t, http.StatusOK)
		signed := storage.PresignPut(t, "uploads/u1/abc.mp3", "audio/mpeg")

		w := NewObjectWriter(nil)
		body := "fake mp3 bytes"
		if err := w.Put(context.Background(), signed, "audio/mpeg", strings.NewReader(body), int64(len(body))); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		objects := storage.Objects()
		if len(objects) != 1 {
			t.Fatalf("expected 1 object, got %d", len(objects))
		}
		obj := objects[0]
		if obj.ContentType != "audio/mpeg" {
			t.Errorf("expected audio/mpeg, got %s", obj.ContentType)
		}
		if string(obj.Body) != body || obj.ContentLength != int64(len(body)) {
			t.Errorf("unexpected body: %q (%d)", obj.Body, obj.ContentLength)
		}
		if !strings.HasSuffix(obj.Path, "/uploads/u1/abc.mp3") {
			t.Errorf("unexpected path: %s", obj.Path)
		}
		if !strings.Contains(obj.SignedHeaders, "content-type") {
			t.Errorf("presigned URL should bind content-type, signed headers: %q", obj.SignedHeaders)
		}
	})

	t.Run("Forbidden Returns TransferError With Body", func(t *testing.T) {
		storage := tu.NewStorageServer(t, http.StatusForbidden)

		w := NewObjectWriter(nil)
		err := w.Put(context.Background(), storage.URL+"/bucket/key", "audio/mpeg", strings.NewReader("x"), 1)

		var transferErr *shared.TransferError
		if !errors.As(err, &transferErr) {
			t.Fatalf("expected TransferError, got %T: %v", err, err)
		}
		if transferErr.StatusCode != http.StatusForbidden {
			t.Errorf("expected 403, got %d", transferErr.StatusCode)
		}
		if !strings.Contains(transferErr.Body, "AccessDenied") {
			t.Errorf("expected storage body, got %q", transferErr.Body)
		}
	})

	t.Run("Network Failure Returns TransferError", func(t *testing.T) {
		client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("connection reset"))}
		w := NewObjectWriter(client)

		err := w.Put(context.Background(), "http://storage.invalid/key", "audio/mpeg", strings.NewReader("x"), 1)
		if !errors.Is(err, shared.ErrTransfer) {
			t.Fatalf("expected ErrTransfer, got %v", err)
		}
	})

	t.Run("Never Sends Authorization", func(t *testing.T) {
		rt := tu.NewMockRoundTripper(&http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil)
		w := NewObjectWriter(&http.Client{Transport: rt})

		if err := w.Put(context.Background(), "http://storage.invalid/key", "audio/wav", strings.NewReader("x"), 1); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(rt.Requests) != 1 || rt.Requests[0].Header.Get("Authorization") != "" {
			t.Error("signed PUT must not carry an Authorization header")
		}
	})
}
