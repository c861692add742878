package reconcile

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/webbuilder/internal/pages"
)

const lockKey = "webbuilder:reconcile:lock"

// Index reports which page ids the page index knows about.
type Index interface {
	IndexedIDs(ctx context.Context) (map[string]struct{}, error)
}

var orphanGauge = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "webbuilder_orphan_artifacts",
	Help: "HTML artifacts in the uploads directory with no page index entry, as of the last scan.",
})

func init() {
	prometheus.MustRegister(orphanGauge)
}

// Reconciler looks for pages whose HTML reached disk but whose index entry
// never did. It only reports them.
type Reconciler struct {
	Dir    string
	Index  Index
	Rdb    *redis.Client
	Logger *log.Logger

	// LockTTL bounds how long one replica owns a tick.
	LockTTL time.Duration
}

func (r *Reconciler) logger() *log.Logger {
	if r.Logger == nil {
		return log.New(log.Writer(), "[RECONCILE] ", log.LstdFlags)
	}
	return r.Logger
}

// Scan returns the page ids of orphaned HTML artifacts, sorted.
func (r *Reconciler) Scan(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			orphanGauge.Set(0)
			return nil, nil
		}
		return nil, fmt.Errorf("read uploads dir: %w", err)
	}
	indexed, err := r.Index.IndexedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	var orphans []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".html" {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".html")
		if !pages.IsPageID(id) {
			// uploaded assets share the directory
			continue
		}
		if _, ok := indexed[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	orphanGauge.Set(float64(len(orphans)))
	return orphans, nil
}

// Tick runs one scan unless another replica holds the tick lock.
func (r *Reconciler) Tick(ctx context.Context) {
	if r.Rdb != nil {
		ttl := r.LockTTL
		if ttl <= 0 {
			ttl = 2 * time.Minute
		}
		ok, err := r.Rdb.SetNX(ctx, lockKey, "1", ttl).Result()
		if err != nil {
			r.logger().Printf("warn: reconcile lock: %v", err)
			return
		}
		if !ok {
			return
		}
		defer r.Rdb.Del(context.Background(), lockKey)
	}
	orphans, err := r.Scan(ctx)
	if err != nil {
		r.logger().Printf("scan failed: %v", err)
		return
	}
	if len(orphans) == 0 {
		return
	}
	r.logger().Printf("warn: %d html artifacts have no index entry: %s", len(orphans), strings.Join(orphans, ", "))
}

// Run ticks on schedule until ctx is done.
func (r *Reconciler) Run(ctx context.Context, schedule string) error {
	expr, err := cronexpr.Parse(schedule)
	if err != nil {
		return fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	for {
		next := expr.Next(time.Now())
		if next.IsZero() {
			return fmt.Errorf("schedule %q has no future run", schedule)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			r.Tick(ctx)
		}
	}
}
