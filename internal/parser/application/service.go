package application

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"invoicing-cloud/internal/eventing"
	ingestevents "invoicing-cloud/internal/ingest/application/events"
	"invoicing-cloud/internal/observability/metrics"
	"invoicing-cloud/internal/parser/application/events"
)

var (
	// ErrNoLines is returned for files that parse but contain no data rows.
	ErrNoLines = errors.New("file contains no invoice lines")

	// ErrMissingHeader is returned when a tabular file has no header row.
	ErrMissingHeader = errors.New("file has no header row")
)

// UnsupportedFormatError reports a format the parser cannot handle.
type UnsupportedFormatError struct {
	Format string
}

func (e UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format %q", e.Format)
}

// Publisher is the outbound event contract.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// Service turns stored carrier files into a stream of line events. The last
// line of a file is flagged terminal so the aggregator knows when a batch is
// complete.
type Service struct {
	bus    Publisher
	logger *zap.SugaredLogger
	now    func() time.Time
}

// Option configures the service.
type Option func(*Service)

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a parser service.
func NewService(bus Publisher, logger *zap.SugaredLogger, opts ...Option) (*Service, error) {
	if bus == nil {
		return nil, errors.New("parser service: nil bus")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	svc := &Service{bus: bus, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// HandleFileStored parses the announced file and publishes one
// CarrierLineExtracted event per data row, in file order.
func (s *Service) HandleFileStored(ctx context.Context, event any) error {
	evt, ok := event.(ingestevents.FileStored)
	if !ok {
		return eventing.ErrInvalidEventType
	}

	start := s.now()
	lines, err := s.parse(evt.Path, evt.Format)
	if err != nil {
		metrics.ObserveParse(evt.Format, metrics.ResultError, s.now().Sub(start))
		return fmt.Errorf("parse %s: %w", evt.Path, err)
	}
	metrics.ObserveParse(evt.Format, metrics.ResultSuccess, s.now().Sub(start))
	metrics.AddLinesExtracted(len(lines))

	s.logger.Infow("carrier file parsed",
		"correlation_id", evt.CorrelationID,
		"format", evt.Format,
		"lines", len(lines),
	)

	for i, fields := range lines {
		lineEvent := events.CarrierLineExtracted{
			CorrelationID: evt.CorrelationID,
			Fields:        fields,
			Position:      i,
			IsTerminal:    i == len(lines)-1,
			OccurredAt:    s.now().UTC(),
		}
		if err := s.bus.Publish(ctx, lineEvent); err != nil {
			return fmt.Errorf("publish line %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *Service) parse(path, format string) ([]map[string]string, error) {
	switch format {
	case "csv":
		return parseCSV(path)
	case "xlsx":
		return parseXLSX(path)
	case "xml":
		return parseXML(path)
	default:
		return nil, UnsupportedFormatError{Format: format}
	}
}

func parseCSV(path string) ([]map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrMissingHeader
	}
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var lines []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		lines = append(lines, rowToFields(header, record))
	}
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	return lines, nil
}

func parseXLSX(path string) ([]map[string]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoLines
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrMissingHeader
	}
	header := rows[0]
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var lines []map[string]string
	for _, row := range rows[1:] {
		if emptyRow(row) {
			continue
		}
		lines = append(lines, rowToFields(header, row))
	}
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	return lines, nil
}

// parseXML reads <line> elements and maps each child element name to its
// character content.
func parseXML(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	decoder := xml.NewDecoder(f)
	var lines []map[string]string
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		start, ok := token.(xml.StartElement)
		if !ok || !strings.EqualFold(start.Name.Local, "line") {
			continue
		}
		fields, err := decodeLineElement(decoder, start)
		if err != nil {
			return nil, err
		}
		lines = append(lines, fields)
	}
	if len(lines) == 0 {
		return nil, ErrNoLines
	}
	return lines, nil
}

func decodeLineElement(decoder *xml.Decoder, start xml.StartElement) (map[string]string, error) {
	fields := make(map[string]string)
	var (
		current string
		value   strings.Builder
	)
	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		switch tok := token.(type) {
		case xml.StartElement:
			current = tok.Name.Local
			value.Reset()
		case xml.CharData:
			if current != "" {
				value.Write(tok)
			}
		case xml.EndElement:
			if tok.Name.Local == start.Name.Local {
				return fields, nil
			}
			if current != "" {
				fields[current] = strings.TrimSpace(value.String())
				current = ""
			}
		}
	}
}

func rowToFields(header, record []string) map[string]string {
	fields := make(map[string]string, len(header))
	for i, name := range header {
		if name == "" {
			continue
		}
		if i < len(record) {
			fields[name] = strings.TrimSpace(record[i])
		} else {
			fields[name] = ""
		}
	}
	return fields
}

func emptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
