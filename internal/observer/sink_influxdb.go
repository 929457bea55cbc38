package observer

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// InfluxDBSink emits line protocol batched by size or interval (spec
// §4.6: "InfluxDB: emits line protocol batched by size or interval"),
// grounded on integration/asgard.go's named HTTP client struct
// (BaseURL + bearer token + http.Client, POSTing a raw body).
type InfluxDBSink struct {
	client      *http.Client
	writeURL    string
	token       string
	measurement string

	maxBatch     int
	flushAfter   time.Duration

	mu       sync.Mutex
	lines    []string
	lastFlush time.Time
}

// NewInfluxDBSink posts line-protocol batches to writeURL (e.g.
// "http://host:8086/api/v2/write?org=o&bucket=b"), flushing once
// maxBatch lines accumulate or flushAfter elapses since the last
// flush, whichever comes first.
func NewInfluxDBSink(writeURL, token, measurement string, maxBatch int, flushAfter time.Duration) *InfluxDBSink {
	return &InfluxDBSink{
		client:      &http.Client{Timeout: 10 * time.Second},
		writeURL:    writeURL,
		token:       token,
		measurement: measurement,
		maxBatch:    maxBatch,
		flushAfter:  flushAfter,
		lastFlush:   time.Time{},
	}
}

func (s *InfluxDBSink) Start(ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFlush = ts
	return nil
}

func (s *InfluxDBSink) Emit(regionName string, ts time.Time, events []Event) error {
	s.mu.Lock()
	for _, ev := range events {
		s.lines = append(s.lines, s.lineProtocol(regionName, ts, ev))
	}
	due := s.lastFlush.IsZero() || ts.Sub(s.lastFlush) >= s.flushAfter
	shouldFlush := len(s.lines) >= s.maxBatch || (s.flushAfter > 0 && due && len(s.lines) > 0)
	s.mu.Unlock()

	if shouldFlush {
		return s.flush(ts)
	}
	return nil
}

func (s *InfluxDBSink) Stop(ts time.Time) error {
	return s.flush(ts)
}

func (s *InfluxDBSink) flush(ts time.Time) error {
	s.mu.Lock()
	if len(s.lines) == 0 {
		s.mu.Unlock()
		return nil
	}
	body := strings.Join(s.lines, "\n")
	s.lines = nil
	s.lastFlush = ts
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "POST", s.writeURL, strings.NewReader(body))
	if err != nil {
		return err
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Token "+s.token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("influxdb write failed: status %d", resp.StatusCode)
	}
	return nil
}

func (s *InfluxDBSink) lineProtocol(regionName string, ts time.Time, ev Event) string {
	var fields []string
	for _, f := range ev.Fields {
		if f.Key == "action" || f.Key == "id" || f.Key == "uuid" || f.Key == "region" {
			continue
		}
		if _, err := strconv.ParseFloat(f.Value, 64); err == nil {
			fields = append(fields, f.Key+"="+f.Value)
		} else {
			fields = append(fields, f.Key+"=\""+f.Value+"\"")
		}
	}
	if len(fields) == 0 {
		fields = append(fields, "count=0")
	}
	return fmt.Sprintf("%s,region=%s,id=%s,action=%s %s %d",
		s.measurement, regionName, ev.Object.ID, ev.Object.Status.String(),
		strings.Join(fields, ","), ts.UnixNano())
}
