package s3

import "testing"

func TestParseS3URL(t *testing.T) {
	tests := []struct {
		url     string
		bucket  string
		key     string
		wantErr bool
	}{
		{"s3://mybucket/path/to/file.bin", "mybucket", "path/to/file.bin", false},
		{"s3://mybucket/prefix/", "mybucket", "prefix/", false},
		{"s3://mybucket", "mybucket", "", false},
		{"mybucket/file.bin", "mybucket", "file.bin", false},
		{"s3://", "", "", true},
	}
	for _, tt := range tests {
		bucket, key, err := parseS3URL(tt.url)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseS3URL(%q): expected error, got none", tt.url)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseS3URL(%q): unexpected error: %v", tt.url, err)
			continue
		}
		if bucket != tt.bucket || key != tt.key {
			t.Errorf("parseS3URL(%q) = (%q, %q), want (%q, %q)", tt.url, bucket, key, tt.bucket, tt.key)
		}
	}
}
