package influx

import (
	"context"
	"strconv"
	"time"

	"github.com/MiaMao0615/AR-Accompanied/internal/geo"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
)

const connectTimeout = 5 * time.Second

// Backend records the session journal as InfluxDB measurements. It
// implements storage.Backend.
type Backend struct {
	m       *Manager
	site    *geo.Site
	session core.Session
	nextID  uint
}

// NewBackend wraps a manager as a journal backend.
func NewBackend(m *Manager) *Backend {
	return &Backend{m: m}
}

// WithSite makes pose points carry WGS84 coordinates of the character.
func (b *Backend) WithSite(site *geo.Site) *Backend {
	b.site = site
	return b
}

// Manager exposes the underlying manager.
func (b *Backend) Manager() *Manager { return b.m }

// Init connects to the server or falls back to the backup file.
func (b *Backend) Init() error {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	return b.m.Connect(ctx)
}

// Close flushes and closes the connection.
func (b *Backend) Close() error {
	return b.m.Close()
}

// StartSession assigns a local ID and writes a session marker point.
func (b *Backend) StartSession(s *core.Session) error {
	b.nextID++
	if s.ID == 0 {
		s.ID = b.nextID
	}
	b.session = *s

	p := influxdb2_write.NewPointWithMeasurement("session").
		AddField("event", "start").
		AddField("version", s.Version).
		SetTime(s.StartTime)
	tag(p, "session", s.Name)
	if s.Latitude != 0 || s.Longitude != 0 {
		p.AddField("latitude", s.Latitude).AddField("longitude", s.Longitude)
	}
	return b.m.WritePoint(b.bucket(), p)
}

// EndSession writes the closing session marker.
func (b *Backend) EndSession() error {
	end := time.Now()
	p := influxdb2_write.NewPointWithMeasurement("session").
		AddField("event", "end").
		AddField("duration", end.Sub(b.session.StartTime).Seconds()).
		SetTime(end)
	tag(p, "session", b.session.Name)
	return b.m.WritePoint(b.bucket(), p)
}

func (b *Backend) bucket() string {
	return b.m.BucketNames[0]
}

func (b *Backend) point(measurement string, t time.Time, tick uint64) *influxdb2_write.Point {
	p := influxdb2_write.NewPointWithMeasurement(measurement).
		AddField("tick", tick).
		SetTime(t)
	tag(p, "session", b.session.Name)
	tag(p, "sessionId", strconv.FormatUint(uint64(b.session.ID), 10))
	return p
}

// tag skips empty values, which line protocol cannot carry.
func tag(p *influxdb2_write.Point, key, value string) *influxdb2_write.Point {
	if value != "" {
		p.AddTag(key, value)
	}
	return p
}

// RecordTrackingChange writes a tracking point.
func (b *Backend) RecordTrackingChange(c *core.TrackingChange) error {
	p := b.point("tracking", c.Time, c.Tick).
		AddField("tracked", c.Tracked).
		AddField("tier", c.Tier)
	tag(p, "anchor", c.AnchorID)
	tag(p, "spot", c.SpotID)
	return b.m.WritePoint(b.bucket(), p)
}

// RecordMatchTransition writes a coordinator point.
func (b *Backend) RecordMatchTransition(m *core.MatchTransition) error {
	p := b.point("match", m.Time, m.Tick).
		AddField("reason", m.Reason).
		AddField("hour", m.Hour).
		AddField("scheduleId", m.ScheduleID).
		AddField("anchorId", m.AnchorID).
		AddField("matched", m.NowMatch)
	tag(p, "cell", m.Cell)
	tag(p, "action", m.Action)
	return b.m.WritePoint(b.bucket(), p)
}

// RecordMotionEvent writes a motion point.
func (b *Backend) RecordMotionEvent(e *core.MotionEvent) error {
	p := b.point("motion", e.Time, e.Tick).
		AddField("token", e.Token).
		AddField("forward", e.Forward).
		AddField("elapsedMs", e.Elapsed.Milliseconds()).
		AddField("distance", e.To.Sub(e.From).Len())
	if len(e.Trail) > 1 {
		p.AddField("trail", geo.MarshalTrail(e.Trail)).
			AddField("trailLength", geo.TrailLength(e.Trail))
	}
	tag(p, "kind", e.Kind)
	tag(p, "scheduleId", e.ScheduleID)
	return b.m.WritePoint(b.bucket(), p)
}

// RecordPoseSample writes the character position and motion flags.
func (b *Backend) RecordPoseSample(s *core.PoseSample) error {
	pos := s.Pose.Position
	p := b.point("pose", s.Time, s.Tick).
		AddField("x", pos.X).
		AddField("y", pos.Y).
		AddField("z", pos.Z).
		AddField("scale", s.Pose.Scale.X).
		AddField("token", s.Token).
		AddField("following", s.Following).
		AddField("moving", s.Moving)
	if b.site != nil {
		lon, lat := b.site.LonLat(pos)
		p.AddField("longitude", lon).AddField("latitude", lat)
	}
	return b.m.WritePoint(b.bucket(), p)
}

// RecordPerformance writes loop health to the performance bucket.
func (b *Backend) RecordPerformance(t time.Time, pending int, tickCount uint64, queues map[string]int) error {
	p := influxdb2_write.NewPointWithMeasurement("engine").
		AddField("inboxPending", pending).
		AddField("ticks", tickCount).
		SetTime(t)
	tag(p, "session", b.session.Name)
	for name, n := range queues {
		p.AddField("queue_"+name, n)
	}
	return b.m.WritePoint(PerformanceBucket, p)
}

// WriteMetric forwards a metric command (see ProcessMetricData).
func (b *Backend) WriteMetric(args []string) error {
	bucket, p, err := ProcessMetricData(args)
	if err != nil {
		return err
	}
	if !hasTag(p, "session") {
		tag(p, "session", b.session.Name)
	}
	return b.m.WritePoint(bucket, p)
}

func hasTag(p *influxdb2_write.Point, key string) bool {
	for _, t := range p.TagList() {
		if t.Key == key {
			return true
		}
	}
	return false
}
