package cmd

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestBuildJobsFromBatch(t *testing.T) {
	raw := `
http:
  - link: https://example.com/a.bin
    op: a.bin
  - link: https://example.com/b.bin
s3:
  - link: s3://bucket/key
gitclone:
  - link: https://github.com/blitzdl/blitz.git
bogus:
  - link: https://example.com/ignored
https:
  - op: missing-link.bin
`
	var batchFile BatchFile
	if err := yaml.Unmarshal([]byte(raw), &batchFile); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	jobs := buildJobsFromBatch(batchFile)
	if len(jobs) != 4 {
		t.Fatalf("jobs: got %d, want 4", len(jobs))
	}
	counts := make(map[string]int)
	for _, job := range jobs {
		counts[job.JobType]++
		if job.URL == "" {
			t.Errorf("job %s has empty URL", job.JobType)
		}
	}
	if counts["http"] != 2 || counts["s3"] != 1 || counts["gitclone"] != 1 {
		t.Errorf("job type counts: %v", counts)
	}
}

func TestBatchEntryTypeOverridesSection(t *testing.T) {
	raw := `
http:
  - link: https://github.com/blitzdl/blitz.git
    type: gitclone
`
	var batchFile BatchFile
	if err := yaml.Unmarshal([]byte(raw), &batchFile); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	jobs := buildJobsFromBatch(batchFile)
	if len(jobs) != 1 {
		t.Fatalf("jobs: got %d, want 1", len(jobs))
	}
	if jobs[0].JobType != "gitclone" {
		t.Errorf("job type: got %q, want %q", jobs[0].JobType, "gitclone")
	}
}

func TestNormalizeJobType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http", "http"},
		{"HTTPS", "http"},
		{"git-clone", "gitclone"},
		{"S3", "s3"},
		{"torrent", ""},
	}
	for _, tt := range tests {
		if got := normalizeJobType(tt.in); got != tt.want {
			t.Errorf("normalizeJobType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
