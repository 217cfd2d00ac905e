package util

import (
	"crypto/md5"
	"hash/crc32"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBucketAndObjectFromUri(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantObject string
		wantErr    bool
	}{
		{uri: "gs://perf/results/all.csv", wantBucket: "perf", wantObject: "results/all.csv"},
		{uri: "gs://perf/", wantBucket: "perf", wantObject: ""},
		{uri: "gs://perf", wantErr: true},
		{uri: "gs:///all.csv", wantErr: true},
		{uri: "/tmp/all.csv", wantErr: true},
	}
	for _, tc := range tests {
		bucket, object, err := ParseBucketAndObjectFromUri(tc.uri)
		if tc.wantErr {
			assert.Error(t, err, tc.uri)
			continue
		}
		require.NoError(t, err, tc.uri)
		assert.Equal(t, tc.wantBucket, bucket, tc.uri)
		assert.Equal(t, tc.wantObject, object, tc.uri)
	}
}

func TestParseBucketAndPrefixFromUri(t *testing.T) {
	tests := []struct {
		uri        string
		wantBucket string
		wantPrefix string
		wantErr    bool
	}{
		{uri: "gs://perf", wantBucket: "perf", wantPrefix: ""},
		{uri: "gs://perf/", wantBucket: "perf", wantPrefix: ""},
		{uri: "gs://perf/runs", wantBucket: "perf", wantPrefix: "runs"},
		{uri: "gs://perf/runs/", wantBucket: "perf", wantPrefix: "runs"},
		{uri: "gs://", wantErr: true},
		{uri: "perf/runs", wantErr: true},
	}
	for _, tc := range tests {
		bucket, prefix, err := ParseBucketAndPrefixFromUri(tc.uri)
		if tc.wantErr {
			assert.Error(t, err, tc.uri)
			continue
		}
		require.NoError(t, err, tc.uri)
		assert.Equal(t, tc.wantBucket, bucket, tc.uri)
		assert.Equal(t, tc.wantPrefix, prefix, tc.uri)
	}
}

func TestIsGCSUri(t *testing.T) {
	assert.True(t, IsGCSUri("gs://b/o"))
	assert.False(t, IsGCSUri(".perf-out/all.csv"))
}

func TestArtifactRequestAttrs(t *testing.T) {
	data := []byte("<html></html>")
	req := NewArtifactRequest("runs/results.html", "text/html; charset=utf-8", data)

	wc := SetAttrsInWriter(&storage.Writer{}, req)

	assert.Equal(t, "runs/results.html", wc.Name)
	assert.Equal(t, "text/html; charset=utf-8", wc.ContentType)
	assert.Equal(t, "no-cache", wc.CacheControl)
	assert.Equal(t, UserAgent, wc.Metadata["generator"])
	assert.True(t, wc.SendCRC32C)
	assert.Equal(t, crc32.Checksum(data, crc32.MakeTable(crc32.Castagnoli)), wc.CRC32C)
	sum := md5.Sum(data)
	assert.Equal(t, sum[:], wc.MD5)
}
