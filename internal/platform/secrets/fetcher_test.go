package secrets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeSecretClient struct {
	payloads map[string]string
	err      error
	calls    int
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	value, ok := f.payloads[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "secret version not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (f *fakeSecretClient) Close() error { return nil }

func TestResolveFetchesAndCaches(t *testing.T) {
	client := &fakeSecretClient{
		payloads: map[string]string{
			"projects/ck-dev/secrets/razorpay-key-secret/versions/latest": "rzp-secret",
		},
	}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithDefaultProject("ck-dev"),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	value, err := fetcher.Resolve(context.Background(), "secret://razorpay-key-secret")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "rzp-secret" {
		t.Fatalf("unexpected secret value %q", value)
	}

	if _, err := fetcher.Resolve(context.Background(), "secret://razorpay-key-secret"); err != nil {
		t.Fatalf("cached Resolve returned error: %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("expected single remote call, got %d", client.calls)
	}
}

func TestResolveHonoursVersionAndProjectOverrides(t *testing.T) {
	client := &fakeSecretClient{
		payloads: map[string]string{
			"projects/ck-prod/secrets/razorpay-key-secret/versions/7": "pinned",
		},
	}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithDefaultProject("ck-dev"),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	value, err := fetcher.Resolve(context.Background(), "secret://razorpay-key-secret?version=7&project=ck-prod")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "pinned" {
		t.Fatalf("unexpected secret value %q", value)
	}
}

func TestResolveFallsBackToLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".secrets.local")
	content := "secret://razorpay-key-secret=local-secret\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing fallback file: %v", err)
	}

	client := &fakeSecretClient{err: status.Error(codes.PermissionDenied, "denied")}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithDefaultProject("ck-dev"),
		WithFallbackFile(path),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	value, err := fetcher.Resolve(context.Background(), "secret://razorpay-key-secret")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "local-secret" {
		t.Fatalf("unexpected fallback value %q", value)
	}
}

func TestResolveSurfacesHardErrors(t *testing.T) {
	client := &fakeSecretClient{err: status.Error(codes.Internal, "boom")}

	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(client),
		WithDefaultProject("ck-dev"),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	if _, err := fetcher.Resolve(context.Background(), "secret://razorpay-key-secret"); err == nil {
		t.Fatal("expected error for non-fallback failure")
	}
}

func TestResolveRejectsUnsupportedScheme(t *testing.T) {
	fetcher, err := NewFetcher(context.Background(),
		WithSecretManagerClient(&fakeSecretClient{}),
		WithFallbackFile(""),
	)
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	if _, err := fetcher.Resolve(context.Background(), "vault://thing"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
	if _, err := fetcher.Resolve(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty reference")
	}
}
