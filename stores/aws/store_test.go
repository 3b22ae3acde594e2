package aws

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"hizuke-thumb/core"
	"hizuke-thumb/stores/storetest"
)

// fakeS3 is an in-memory bucket implementing Client.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &s3types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, obj := range in.Delete.Objects {
		delete(f.objects, aws.ToString(obj.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	out := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		out.Contents = append(out.Contents, s3types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) core.Store {
		return NewStoreWithClient(newFakeS3(), "bucket")
	})
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		id      string
		want    string
		wantErr bool
	}{
		{id: "01HX", want: "presets/01HX.json"},
		{id: "", wantErr: true},
		{id: ".", wantErr: true},
		{id: "..", wantErr: true},
		{id: "../images/x", wantErr: true},
		{id: "a/b", wantErr: true},
	}
	for _, tt := range tests {
		got, err := objectKey(presetsPrefix, tt.id)
		if (err != nil) != tt.wantErr {
			t.Errorf("objectKey(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("objectKey(%q) = %q, want %q", tt.id, got, tt.want)
		}
	}
}

func TestKeysArePrefixedByKind(t *testing.T) {
	client := newFakeS3()
	store := NewStoreWithClient(client, "bucket")
	ctx := context.Background()

	if err := store.CreatePreset(ctx, storetest.SamplePreset("p1")); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveImage(ctx, &core.ImageRecord{ID: "i1"}); err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"presets/p1.json", "images/i1.json"} {
		if _, ok := client.objects[key]; !ok {
			t.Errorf("object %s not written; have %v", key, client.objects)
		}
	}

	// Images never show up as presets.
	presets, err := store.ListPresets(ctx)
	if err != nil || len(presets) != 1 {
		t.Errorf("ListPresets() = %d, %v", len(presets), err)
	}
}

func TestGetPreset_BackendError(t *testing.T) {
	client := newFakeS3()
	client.getErr = errors.New("access denied")
	store := NewStoreWithClient(client, "bucket")

	_, err := store.GetPreset(context.Background(), "p1")
	if err == nil || errors.Is(err, core.ErrNotFound) {
		t.Errorf("GetPreset() error = %v, want a non-not-found failure", err)
	}
}
