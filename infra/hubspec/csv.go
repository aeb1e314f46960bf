// Package hubspec loads the charging infrastructure and the vehicle fleet
// from files.
package hubspec

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/kilianp07/evhub/core/charging"
	"github.com/kilianp07/evhub/core/logger"
)

const (
	DefaultChargersPerRow = 1
	DefaultPowerKW        = 11.0
)

// ParseCSV reads the legacy hub table `hubId,linkId,nColonnine,type,power`
// with power in kW. The first row is a header. Each row is separated by
// tabs when it contains one and by commas otherwise, so mixed files load.
// Rows that do not parse or have fewer than five fields are skipped with a
// warning; an unparsable charger count or power falls back to
// DefaultChargersPerRow and DefaultPowerKW. Several rows for the same hub
// continue its charger numbering.
func ParseCSV(r io.Reader, log logger.Logger) (charging.Infrastructure, error) {
	if log == nil {
		log = logger.NopLogger{}
	}
	var (
		infra  charging.Infrastructure
		b      = newBuilder()
		line   = 0
		header = true
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(text) == "" || strings.HasPrefix(strings.TrimSpace(text), "#") {
			continue
		}
		if header {
			header = false
			continue
		}
		rec, err := parseRow(text)
		if err != nil {
			log.Warnf("hub csv line %d: %v; skipped", line, err)
			continue
		}
		if len(rec) < 5 {
			log.Warnf("hub csv line %d: expected 5 fields, got %d; skipped", line, len(rec))
			continue
		}
		hubID := strings.TrimSpace(rec[0])
		linkID := strings.TrimSpace(rec[1])
		n, err := strconv.Atoi(strings.TrimSpace(rec[2]))
		if err != nil || n <= 0 {
			log.Warnf("hub csv line %d: charger count %q invalid, using %d", line, rec[2], DefaultChargersPerRow)
			n = DefaultChargersPerRow
		}
		kw, err := strconv.ParseFloat(strings.TrimSpace(rec[4]), 64)
		if err != nil || kw <= 0 {
			log.Warnf("hub csv line %d: power %q invalid, using %.1f kW", line, rec[4], DefaultPowerKW)
			kw = DefaultPowerKW
		}
		b.add(&infra, Record{HubID: hubID, LinkID: linkID, Chargers: n, PlugTypes: splitPlugs(rec[3]), PowerKW: kw})
	}
	if err := sc.Err(); err != nil {
		return charging.Infrastructure{}, fmt.Errorf("hub csv line %d: %w", line+1, err)
	}
	return infra, nil
}

// parseRow splits one physical line. A bare quote inside an unquoted field
// is a parse error, so the row is dropped rather than loaded with a mangled
// plug type.
func parseRow(text string) ([]string, error) {
	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = ','
	if strings.ContainsRune(text, '\t') {
		cr.Comma = '\t'
	}
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rec, err := cr.Read()
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return nil, perr.Err
		}
		return nil, err
	}
	return rec, nil
}

func splitPlugs(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ';' })
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// builder numbers chargers per hub across rows.
type builder struct {
	next map[string]int
}

func newBuilder() *builder { return &builder{next: make(map[string]int)} }

func (b *builder) add(infra *charging.Infrastructure, r Record) {
	infra.Hubs = append(infra.Hubs, charging.HubSpec{ID: r.HubID, LinkID: r.LinkID})
	for i := 0; i < r.Chargers; i++ {
		b.next[r.HubID]++
		infra.Chargers = append(infra.Chargers, charging.ChargerSpec{
			ID:     fmt.Sprintf("%s_col%d", r.HubID, b.next[r.HubID]),
			HubID:  r.HubID,
			LinkID: r.LinkID,
			Plugs:  r.PlugTypes,
			PowerW: r.PowerKW * 1000,
		})
	}
}
