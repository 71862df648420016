package main

import (
	"os"
	"testing"
)

func TestFormatBytes(t *testing.T) {
	testCases := []struct {
		bytes    int64
		expected string
	}{
		{200 * bytesPerMB, "200MB"},
		{1024 * 1024 * 1024, "1GB"},
		{2048, "2KB"},
		{500, "500B"},
		{1536, "1536B"}, // not a clean multiple of KB
	}
	for _, tc := range testCases {
		if got := formatBytes(tc.bytes); got != tc.expected {
			t.Errorf("formatBytes(%d) = %q, want %q", tc.bytes, got, tc.expected)
		}
	}
}

func TestReadMaxSizeConfigDefaultAndCustom(t *testing.T) {
	os.Unsetenv("UPLOAD_MAX_SIZE_MB")
	bytes, label := readMaxSizeConfig()
	if bytes != defaultMaxSizeMB*bytesPerMB {
		t.Errorf("default bytes = %d, want %d", bytes, defaultMaxSizeMB*bytesPerMB)
	}
	if label != "200MB" {
		t.Errorf("default label = %q, want 200MB", label)
	}

	t.Setenv("UPLOAD_MAX_SIZE_MB", "50")
	bytes, label = readMaxSizeConfig()
	if bytes != 50*bytesPerMB {
		t.Errorf("custom bytes = %d, want %d", bytes, 50*bytesPerMB)
	}
	if label != "50MB" {
		t.Errorf("custom label = %q, want 50MB", label)
	}

	t.Setenv("UPLOAD_MAX_SIZE_MB", "0")
	bytes, _ = readMaxSizeConfig()
	if bytes != defaultMaxSizeMB*bytesPerMB {
		t.Errorf("zero override should fall back to default, got %d", bytes)
	}

	t.Setenv("UPLOAD_MAX_SIZE_MB", "not-a-number")
	bytes, _ = readMaxSizeConfig()
	if bytes != defaultMaxSizeMB*bytesPerMB {
		t.Errorf("non-numeric override should fall back to default, got %d", bytes)
	}
}

func TestGetEnvBool(t *testing.T) {
	os.Unsetenv("TEST_BOOL_FLAG")
	if got := getEnvBool("TEST_BOOL_FLAG", false); got != false {
		t.Errorf("default = %v, want false", got)
	}

	t.Setenv("TEST_BOOL_FLAG", "true")
	if got := getEnvBool("TEST_BOOL_FLAG", false); got != true {
		t.Errorf("true override = %v, want true", got)
	}

	t.Setenv("TEST_BOOL_FLAG", "garbage")
	if got := getEnvBool("TEST_BOOL_FLAG", true); got != true {
		t.Errorf("invalid override should fall back to default, got %v", got)
	}
}

func TestSplitCSV(t *testing.T) {
	if got := splitCSV(""); got != nil {
		t.Errorf("empty string should yield nil, got %v", got)
	}
	got := splitCSV("http://a.com, http://b.com ,,http://c.com")
	want := []string{"http://a.com", "http://b.com", "http://c.com"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
