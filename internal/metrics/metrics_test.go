package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorsRecord(t *testing.T) {
	t.Parallel()

	c := New(prometheus.NewRegistry())

	c.RecordRegistryWrite("success")
	c.RecordRegistryWrite("success")
	c.RecordBackup("local", "success")
	c.RecordPruned("local", 3)
	c.RecordPruned("local", 0)
	c.RecordArticleFile("save", "error")
	c.RecordRejection("save-database")
	c.RecordRequest("GET", "/api/next-code", "200", 5*time.Millisecond)

	if got := testutil.ToFloat64(c.RegistryWrites.WithLabelValues("success")); got != 2 {
		t.Fatalf("expected 2 registry writes, got %v", got)
	}
	if got := testutil.ToFloat64(c.BackupsPruned.WithLabelValues("local")); got != 3 {
		t.Fatalf("expected 3 pruned backups, got %v", got)
	}
	if got := testutil.ToFloat64(c.ArticleFiles.WithLabelValues("save", "error")); got != 1 {
		t.Fatalf("expected 1 failed save, got %v", got)
	}
	if got := testutil.ToFloat64(c.HTTPRequests.WithLabelValues("GET", "/api/next-code", "200")); got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}
}

func TestConsistencyIssuesReset(t *testing.T) {
	t.Parallel()

	c := New(prometheus.NewRegistry())
	c.SetConsistencyIssues(map[string]int{"missing_file": 2, "orphan_file": 1})
	c.SetConsistencyIssues(map[string]int{"orphan_file": 4})

	if got := testutil.CollectAndCount(c.ConsistencyIssues); got != 1 {
		t.Fatalf("expected stale kinds to be reset, got %d series", got)
	}
	if got := testutil.ToFloat64(c.ConsistencyIssues.WithLabelValues("orphan_file")); got != 4 {
		t.Fatalf("expected 4 orphan files, got %v", got)
	}
}

func TestNilCollectorsAreNoop(t *testing.T) {
	t.Parallel()

	var c *Collectors
	c.RecordRegistryWrite("success")
	c.RecordBackup("s3", "error")
	c.RecordPruned("s3", 1)
	c.RecordArticleFile("delete", "success")
	c.RecordRejection("save-article")
	c.SetConsistencyIssues(map[string]int{"missing_file": 1})
	c.RecordRequest("POST", "/api/save-article", "200", time.Second)
}
