package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/johnayoung/go-price-sync/internal/models"
	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"
)

// Codec reads and writes the tabular file of one series.
type Codec interface {
	Extension() string
	Write(path string, kind models.DataKind, bars []models.Bar) error
	Read(path string, kind models.DataKind) ([]models.Bar, error)
}

// NewCodec returns the codec for format (csv or parquet), or nil if the
// format is not supported.
func NewCodec(format string) Codec {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "csv":
		return CSVCodec{}
	case "parquet":
		return ParquetCodec{}
	default:
		return nil
	}
}

var (
	baseColumns     = []string{"open", "high", "low", "close", "volume"}
	adjustedColumns = []string{"adj_open", "adj_high", "adj_low", "adj_close"}
)

func hasAnyAdjusted(bars []models.Bar) bool {
	for _, b := range bars {
		if b.AdjClose.Valid {
			return true
		}
	}
	return false
}

func formatNull(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func parseNull(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func parseTimestamp(date, clock string) (time.Time, error) {
	if clock == "" {
		return time.Parse(models.DateLayout, date)
	}
	return time.Parse(models.DateTimeLayout, date+" "+clock)
}

// barRecord is the flat, string-typed row shared by both codecs.
type barRecord struct {
	Date     string `parquet:"date"`
	Time     string `parquet:"time,optional"`
	Open     string `parquet:"open"`
	High     string `parquet:"high"`
	Low      string `parquet:"low"`
	Close    string `parquet:"close"`
	Volume   int64  `parquet:"volume"`
	AdjOpen  string `parquet:"adj_open,optional"`
	AdjHigh  string `parquet:"adj_high,optional"`
	AdjLow   string `parquet:"adj_low,optional"`
	AdjClose string `parquet:"adj_close,optional"`
}

func toRecord(b models.Bar, intraday bool) barRecord {
	r := barRecord{
		Date:     b.Timestamp.Format(models.DateLayout),
		Open:     b.Open.String(),
		High:     b.High.String(),
		Low:      b.Low.String(),
		Close:    b.Close.String(),
		Volume:   b.Volume,
		AdjOpen:  formatNull(b.AdjOpen),
		AdjHigh:  formatNull(b.AdjHigh),
		AdjLow:   formatNull(b.AdjLow),
		AdjClose: formatNull(b.AdjClose),
	}
	if intraday {
		r.Time = b.Timestamp.Format(models.TimeLayout)
	}
	return r
}

func (r barRecord) toBar() (models.Bar, error) {
	ts, err := parseTimestamp(r.Date, r.Time)
	if err != nil {
		return models.Bar{}, fmt.Errorf("invalid timestamp %q %q: %w", r.Date, r.Time, err)
	}
	b, err := models.NewBar(ts, r.Open, r.High, r.Low, r.Close, r.Volume)
	if err != nil {
		return models.Bar{}, err
	}
	adj := []struct {
		raw string
		dst *decimal.NullDecimal
	}{
		{r.AdjOpen, &b.AdjOpen},
		{r.AdjHigh, &b.AdjHigh},
		{r.AdjLow, &b.AdjLow},
		{r.AdjClose, &b.AdjClose},
	}
	for _, a := range adj {
		if *a.dst, err = parseNull(a.raw); err != nil {
			return models.Bar{}, fmt.Errorf("invalid adjusted price %q: %w", a.raw, err)
		}
	}
	return *b, nil
}

// CSVCodec stores a series as a CSV file with a header row.
type CSVCodec struct{}

func (CSVCodec) Extension() string { return "csv" }

func (CSVCodec) Write(path string, kind models.DataKind, bars []models.Bar) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	intraday := kind.IsIntraday()
	adjusted := hasAnyAdjusted(bars)

	header := []string{"date"}
	if intraday {
		header = append(header, "time")
	}
	header = append(header, baseColumns...)
	if adjusted {
		header = append(header, adjustedColumns...)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, b := range bars {
		r := toRecord(b, intraday)
		row := []string{r.Date}
		if intraday {
			row = append(row, r.Time)
		}
		row = append(row, r.Open, r.High, r.Low, r.Close, strconv.FormatInt(r.Volume, 10))
		if adjusted {
			row = append(row, r.AdjOpen, r.AdjHigh, r.AdjLow, r.AdjClose)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

func (CSVCodec) Read(path string, kind models.DataKind) ([]models.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(rows) == 0 {
		return []models.Bar{}, nil
	}

	columns := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		columns[strings.TrimSpace(name)] = i
	}
	for _, required := range append([]string{"date"}, baseColumns...) {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("csv header is missing column %q", required)
		}
	}
	field := func(row []string, name string) string {
		if i, ok := columns[name]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	bars := make([]models.Bar, 0, len(rows)-1)
	for line, row := range rows[1:] {
		volume, err := strconv.ParseInt(field(row, "volume"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid volume: %w", line+2, err)
		}
		r := barRecord{
			Date:     field(row, "date"),
			Time:     field(row, "time"),
			Open:     field(row, "open"),
			High:     field(row, "high"),
			Low:      field(row, "low"),
			Close:    field(row, "close"),
			Volume:   volume,
			AdjOpen:  field(row, "adj_open"),
			AdjHigh:  field(row, "adj_high"),
			AdjLow:   field(row, "adj_low"),
			AdjClose: field(row, "adj_close"),
		}
		b, err := r.toBar()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line+2, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

// ParquetCodec stores a series as a Parquet file.
type ParquetCodec struct{}

func (ParquetCodec) Extension() string { return "parquet" }

func (ParquetCodec) Write(path string, kind models.DataKind, bars []models.Bar) error {
	records := make([]barRecord, len(bars))
	for i, b := range bars {
		records[i] = toRecord(b, kind.IsIntraday())
	}
	return parquet.WriteFile(path, records)
}

func (ParquetCodec) Read(path string, kind models.DataKind) ([]models.Bar, error) {
	records, err := parquet.ReadFile[barRecord](path)
	if err != nil {
		return nil, err
	}
	bars := make([]models.Bar, 0, len(records))
	for i, r := range records {
		b, err := r.toBar()
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}
