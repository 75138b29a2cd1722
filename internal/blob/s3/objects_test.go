package s3blob

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	puts    map[string][]byte
	heads   map[string]error
	pages   [][]types.Object
	listed  int
	headErr error
}

func (f *fakeAPI) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func (f *fakeAPI) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if err, ok := f.heads[aws.ToString(in.Key)]; ok {
		return nil, err
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, _ *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	page := f.pages[f.listed]
	f.listed++
	out := &s3.ListObjectsV2Output{Contents: page}
	if f.listed < len(f.pages) {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String("next")
	}
	return out, nil
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func TestStorePut(t *testing.T) {
	api := &fakeAPI{}
	s := &Store{api: api, bucket: "b"}
	require.NoError(t, s.Put(context.Background(), "purchases/x.jsonl", []byte("{}\n"), jsonlContentType))
	assert.Equal(t, []byte("{}\n"), api.puts["purchases/x.jsonl"])
}

func TestStoreExists(t *testing.T) {
	boom := errors.New("boom")
	api := &fakeAPI{heads: map[string]error{
		"missing": &types.NotFound{},
		"nokey":   &types.NoSuchKey{},
		"broken":  boom,
	}}
	s := &Store{api: api, bucket: "b"}
	ctx := context.Background()

	ok, err := s.Exists(ctx, "present")
	require.NoError(t, err)
	assert.True(t, ok)

	for _, key := range []string{"missing", "nokey"} {
		ok, err = s.Exists(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok, key)
	}

	_, err = s.Exists(ctx, "broken")
	assert.ErrorIs(t, err, boom)
}

func TestStoreListFollowsPages(t *testing.T) {
	at := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	api := &fakeAPI{pages: [][]types.Object{
		{{Key: aws.String("purchases/2026-01/2026-01-30.jsonl"), Size: aws.Int64(10), LastModified: &at}},
		{{Key: aws.String("purchases/2026-01/2026-01-31.jsonl"), Size: aws.Int64(20)}},
	}}
	s := &Store{api: api, bucket: "b"}

	infos, err := s.List(context.Background(), "purchases/")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "purchases/2026-01/2026-01-30.jsonl", infos[0].Path)
	assert.Equal(t, at, infos[0].LastModified)
	assert.Equal(t, int64(20), infos[1].Size)
	assert.True(t, infos[1].LastModified.IsZero())
}

func TestHealth(t *testing.T) {
	s := &Store{api: &fakeAPI{headErr: errors.New("forbidden")}, bucket: "b"}
	assert.ErrorContains(t, s.Health(context.Background()), "head bucket b")
}
