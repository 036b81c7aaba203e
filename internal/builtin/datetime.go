package builtin

import (
	"context"
	"fmt"
	"time"
	_ "time/tzdata" // location config must work on hosts without zoneinfo

	"github.com/mattjoyce/aurras/internal/plugin"
	"github.com/mattjoyce/aurras/internal/protocol"
)

// Go reference-time layouts for "%B %d" and "%H:%M".
const (
	DefaultDateFormat = "January 02"
	DefaultTimeFormat = "15:04"
)

// Datetime answers get_date and get_time from the local clock.
type Datetime struct {
	dateFormat string
	timeFormat string
	loc        *time.Location
	now        func() time.Time
}

// NewDatetime builds the datetime handler. Recognised config keys:
// date_format, time_format (Go layouts) and location (IANA zone name).
func NewDatetime(cfg map[string]any, now func() time.Time) (plugin.Handler, error) {
	d := &Datetime{now: now}
	if d.now == nil {
		d.now = time.Now
	}

	var err error
	if d.dateFormat, err = stringOpt(cfg, "date_format", DefaultDateFormat); err != nil {
		return nil, err
	}
	if d.timeFormat, err = stringOpt(cfg, "time_format", DefaultTimeFormat); err != nil {
		return nil, err
	}
	zone, err := stringOpt(cfg, "location", "")
	if err != nil {
		return nil, err
	}
	if zone != "" {
		if d.loc, err = time.LoadLocation(zone); err != nil {
			return nil, fmt.Errorf("config location: %w", err)
		}
	}

	return plugin.Text(d.answer), nil
}

func (d *Datetime) answer(_ context.Context, req *protocol.Request) (string, error) {
	now := d.now()
	if d.loc != nil {
		now = now.In(d.loc)
	}
	switch req.Intent {
	case "get_date":
		return now.Format(d.dateFormat), nil
	case "get_time":
		return now.Format(d.timeFormat), nil
	default:
		return "", fmt.Errorf("datetime cannot answer intent %q", req.Intent)
	}
}
