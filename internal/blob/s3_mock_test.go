package blob

import (
	"bufio"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type mockObject struct {
	body        []byte
	contentType string
	meta        map[string]string
}

// mockS3 is a path-style S3 fake covering Head/Get/Put/Delete/ListObjectsV2.
type mockS3 struct {
	mu      sync.Mutex
	bucket  string
	objects map[string]mockObject
}

func newMockS3(t *testing.T) (*S3, *mockS3) {
	t.Helper()
	rt := &mockS3{bucket: "test-bucket", objects: make(map[string]mockObject)}
	st, err := NewS3(context.Background(), S3Options{
		Bucket:          rt.bucket,
		Region:          "us-east-1",
		Endpoint:        "https://mock.s3.local",
		UsePathStyle:    true,
		AccessKeyID:     "AKIA",
		SecretAccessKey: "SECRET",
		HTTPClient:      &http.Client{Transport: rt},
	})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	return st, rt
}

func response(status int, body []byte, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode:    status,
		Body:          io.NopCloser(bytes.NewReader(body)),
		Header:        header,
		ContentLength: int64(len(body)),
	}
}

func (m *mockS3) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := strings.TrimPrefix(req.URL.Path, "/"+m.bucket)
	key := strings.TrimPrefix(path, "/")

	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return m.list(req.URL.Query().Get("prefix")), nil
	}

	switch req.Method {
	case http.MethodHead, http.MethodGet:
		obj, ok := m.objects[key]
		if !ok {
			if req.Method == http.MethodHead {
				return response(http.StatusNotFound, nil, nil), nil
			}
			body := []byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return response(http.StatusNotFound, body, http.Header{"Content-Type": {"application/xml"}}), nil
		}
		sum := md5.Sum(obj.body)
		h := http.Header{
			"Content-Length": {strconv.Itoa(len(obj.body))},
			"Content-Type":   {obj.contentType},
			"Etag":           {`"` + hex.EncodeToString(sum[:]) + `"`},
			"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
		}
		for k, v := range obj.meta {
			h.Set("X-Amz-Meta-"+k, v)
		}
		if req.Method == http.MethodHead {
			resp := response(http.StatusOK, nil, h)
			resp.ContentLength = int64(len(obj.body))
			return resp, nil
		}
		return response(http.StatusOK, obj.body, h), nil

	case http.MethodPut:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
			body = decodeAWSChunked(body)
		}
		meta := map[string]string{}
		for k, v := range req.Header {
			if strings.HasPrefix(strings.ToLower(k), "x-amz-meta-") {
				meta[strings.ToLower(strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-"))] = v[0]
			}
		}
		m.objects[key] = mockObject{body: body, contentType: req.Header.Get("Content-Type"), meta: meta}
		return response(http.StatusOK, nil, http.Header{"Etag": {`"etag"`}}), nil

	case http.MethodDelete:
		delete(m.objects, key)
		return response(http.StatusNoContent, nil, nil), nil
	}
	return response(http.StatusNotImplemented, nil, nil), nil
}

func (m *mockS3) list(prefix string) *http.Response {
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
	for _, k := range keys {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2026-01-01T00:00:00Z</LastModified></Contents>",
			k, len(m.objects[k].body))
	}
	b.WriteString(`</ListBucketResult>`)
	return response(http.StatusOK, []byte(b.String()), http.Header{"Content-Type": {"application/xml"}})
}

// decodeAWSChunked strips aws-chunked framing: "<hex>[;ext]\r\n<data>\r\n" ... "0\r\n<trailers>".
func decodeAWSChunked(body []byte) []byte {
	var out bytes.Buffer
	r := bufio.NewReader(bytes.NewReader(body))
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return out.Bytes()
		}
		sizeField, _, _ := strings.Cut(strings.TrimSpace(line), ";")
		n, err := strconv.ParseInt(sizeField, 16, 64)
		if err != nil || n == 0 {
			return out.Bytes()
		}
		if _, err := io.CopyN(&out, r, n); err != nil {
			return out.Bytes()
		}
		_, _ = r.ReadString('\n')
	}
}
