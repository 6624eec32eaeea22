package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/example/transit-fraud/internal/geo"
	"github.com/example/transit-fraud/internal/logging"
	"github.com/example/transit-fraud/internal/models"
)

const DefaultBatchSize = 1000

// Sink receives parsed rows in column order. Copy may be called from several
// goroutines, one per table.
type Sink interface {
	Copy(ctx context.Context, t Table, rows [][]any) (int64, error)
}

// Report counts rows written per table.
type Report map[Table]int64

type Loader struct {
	Sink      Sink
	BatchSize int
	// SpeedMps fills edges whose time column is blank.
	SpeedMps float64
	Logger   *slog.Logger
}

func New(sink Sink, logger *slog.Logger) *Loader {
	return &Loader{Sink: sink, BatchSize: DefaultBatchSize, SpeedMps: geo.DefaultSpeedMps, Logger: logging.Component(logger, "loader")}
}

// Load reads every known CSV file from dir. Tables without foreign keys are
// loaded first, then the relation and ride tables, each stage in parallel.
// station.csv is required; other missing files are skipped.
func (l *Loader) Load(ctx context.Context, dir string) (Report, error) {
	report := make(Report)
	var mu sync.Mutex
	coords := make(map[int64][2]float64)

	for stage := 0; stage <= 1; stage++ {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for _, t := range AllTables {
			if schemas[t].stage != stage {
				continue
			}
			t := t
			g.Go(func() error {
				var onRow func([]any)
				if t == Stations {
					onRow = func(row []any) {
						coords[row[0].(int64)] = [2]float64{row[2].(float64), row[3].(float64)}
					}
				}
				n, err := l.loadTable(gctx, dir, t, coords, onRow)
				if err != nil {
					return err
				}
				mu.Lock()
				report[t] = n
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (l *Loader) loadTable(ctx context.Context, dir string, t Table, coords map[int64][2]float64, onRow func([]any)) (int64, error) {
	path := filepath.Join(dir, t.File())
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) && t != Stations {
		l.logger().Info("no csv file, skipping table", "table", t.String(), "file", path)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %w", models.ErrInvalidInput, path, err)
	}
	defer f.Close()

	start := time.Now()
	n, err := l.copyCSV(ctx, f, t, coords, onRow)
	if err != nil {
		return n, fmt.Errorf("%s: %w", t.File(), err)
	}
	l.logger().Info("table loaded", "table", t.String(), "rows", n, "duration_ms", time.Since(start).Milliseconds())
	return n, nil
}

func (l *Loader) copyCSV(ctx context.Context, r io.Reader, t Table, coords map[int64][2]float64, onRow func([]any)) (int64, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("%w: read header: %w", models.ErrInvalidInput, err)
	}
	idx, err := headerIndex(t, header)
	if err != nil {
		return 0, err
	}

	size := l.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	var written int64
	batch := make([][]any, 0, size)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := l.Sink.Copy(ctx, t, batch)
		written += n
		if err != nil {
			return fmt.Errorf("%w: copy %s: %w", models.ErrDependency, t, err)
		}
		batch = make([][]any, 0, size)
		return nil
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, fmt.Errorf("%w: line %d: %w", models.ErrInvalidInput, line, err)
		}
		row, err := parseRow(t, rec, idx)
		if err != nil {
			return written, fmt.Errorf("%w: line %d: %w", models.ErrInvalidInput, line, err)
		}
		if t == Edges {
			if err := l.fillEdge(row, coords); err != nil {
				return written, fmt.Errorf("%w: line %d: %w", models.ErrInvalidInput, line, err)
			}
		}
		if onRow != nil {
			onRow(row)
		}
		batch = append(batch, row)
		if len(batch) == size {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	return written, flush()
}

// headerIndex maps each non-generated column to its position in the file.
func headerIndex(t Table, header []string) ([]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	cols := t.Columns()
	idx := make([]int, len(cols))
	var missing []string
	for i, c := range cols {
		idx[i] = -1
		if c.generated {
			continue
		}
		p, ok := pos[c.Header]
		if !ok {
			if !c.optional {
				missing = append(missing, c.Header)
			}
			continue
		}
		idx[i] = p
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing columns %s", models.ErrInvalidInput, strings.Join(missing, ", "))
	}
	return idx, nil
}

func parseRow(t Table, rec []string, idx []int) ([]any, error) {
	cols := t.Columns()
	row := make([]any, len(cols))
	for i, c := range cols {
		if c.generated {
			row[i] = uuid.NewString()
			continue
		}
		raw := ""
		if idx[i] >= 0 && idx[i] < len(rec) {
			raw = strings.TrimSpace(rec[idx[i]])
		}
		v, err := parseValue(c, raw)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Header, err)
		}
		row[i] = v
	}
	return row, nil
}

func parseValue(c Column, raw string) (any, error) {
	if raw == "" {
		if !c.optional {
			return nil, errors.New("value is required")
		}
		switch c.kind {
		case kindInt:
			return int64(0), nil
		case kindText:
			return "", nil
		case kindBool:
			return false, nil
		default:
			// blank floats and times stay NULL
			return nil, nil
		}
	}
	switch c.kind {
	case kindInt:
		return strconv.ParseInt(raw, 10, 64)
	case kindFloat:
		return strconv.ParseFloat(raw, 64)
	case kindTime:
		return parseTime(raw)
	case kindBool:
		return parseSuspect(raw)
	default:
		return raw, nil
	}
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"}

func parseTime(raw string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

// parseSuspect accepts booleans or counts; any non-zero count is true.
func parseSuspect(raw string) (bool, error) {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("unrecognised flag %q", raw)
	}
	return n != 0, nil
}

func (l *Loader) fillEdge(row []any, coords map[int64][2]float64) error {
	if row[2] != nil && row[3] != nil {
		return nil
	}
	from, to := row[0].(int64), row[1].(int64)
	a, okA := coords[from]
	b, okB := coords[to]
	if !okA || !okB {
		return fmt.Errorf("edge %d->%d has blank distance or time and no station coordinates", from, to)
	}
	if row[2] == nil {
		row[2] = geo.Haversine(a[0], a[1], b[0], b[1])
	}
	if row[3] == nil {
		row[3] = geo.TravelSeconds(a[0], a[1], b[0], b[1], l.SpeedMps)
	}
	return nil
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}
