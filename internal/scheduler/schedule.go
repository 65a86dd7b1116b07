package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const defaultInterval = time.Hour

// cronSpec 五段 cron 表达式，每段以位图记录允许的取值。
type cronSpec struct {
	minute, hour, dom, month, dow uint64
}

type fieldBounds struct {
	name   string
	lo, hi int
}

var cronFields = [5]fieldBounds{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// parseSchedule 接受 Go duration 或 cron 表达式，都无效时返回默认间隔。
func parseSchedule(value string) (time.Duration, *cronSpec) {
	v := strings.TrimSpace(value)
	if v == "" {
		return defaultInterval, nil
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d, nil
	}
	if spec, err := parseCron(v); err == nil {
		return 0, spec
	}
	return defaultInterval, nil
}

func parseCron(expr string) (*cronSpec, error) {
	parts := strings.Fields(expr)
	if len(parts) != len(cronFields) {
		return nil, fmt.Errorf("cron spec needs %d fields, got %d", len(cronFields), len(parts))
	}
	var masks [5]uint64
	for i, part := range parts {
		m, err := parseCronField(part, cronFields[i].lo, cronFields[i].hi)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cronFields[i].name, err)
		}
		masks[i] = m
	}
	return &cronSpec{minute: masks[0], hour: masks[1], dom: masks[2], month: masks[3], dow: masks[4]}, nil
}

// parseCronField 支持 *、n、a-b 以及 /step，逗号分隔。
func parseCronField(expr string, lo, hi int) (uint64, error) {
	var mask uint64
	for _, item := range strings.Split(expr, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			return 0, fmt.Errorf("empty item in %q", expr)
		}
		rangePart, step := item, 1
		if i := strings.Index(item, "/"); i >= 0 {
			n, err := strconv.Atoi(item[i+1:])
			if err != nil || n <= 0 {
				return 0, fmt.Errorf("invalid step %q", item)
			}
			rangePart, step = item[:i], n
		}

		from, to := lo, hi
		switch {
		case rangePart == "*":
		case strings.Contains(rangePart, "-"):
			bounds := strings.SplitN(rangePart, "-", 2)
			a, errA := strconv.Atoi(bounds[0])
			b, errB := strconv.Atoi(bounds[1])
			if errA != nil || errB != nil || a > b {
				return 0, fmt.Errorf("invalid range %q", item)
			}
			from, to = a, b
		default:
			n, err := strconv.Atoi(rangePart)
			if err != nil {
				return 0, fmt.Errorf("invalid value %q", item)
			}
			from, to = n, n
			if step > 1 {
				to = hi
			}
		}
		if from < lo || to > hi {
			return 0, fmt.Errorf("value out of range [%d,%d] in %q", lo, hi, item)
		}
		for v := from; v <= to; v += step {
			mask |= 1 << uint(v)
		}
	}
	return mask, nil
}

func (c *cronSpec) matches(t time.Time) bool {
	return c.minute&(1<<uint(t.Minute())) != 0 &&
		c.hour&(1<<uint(t.Hour())) != 0 &&
		c.dom&(1<<uint(t.Day())) != 0 &&
		c.month&(1<<uint(t.Month())) != 0 &&
		c.dow&(1<<uint(t.Weekday())) != 0
}

// next 返回 after 之后第一个匹配的整分钟，最多向后搜索一年。
func (c *cronSpec) next(after time.Time) (time.Time, error) {
	t := after.Truncate(time.Minute).Add(time.Minute)
	limit := t.AddDate(1, 0, 1)
	for ; t.Before(limit); t = t.Add(time.Minute) {
		if c.matches(t) {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("no matching time within a year")
}
