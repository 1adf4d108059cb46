package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"invoicing-cloud/internal/ingest/application/events"
	"invoicing-cloud/internal/observability/metrics"
)

var (
	// ErrEmptyPath rejects ingest requests without a file path.
	ErrEmptyPath = errors.New("empty file path")

	// ErrNotRegularFile rejects directories and special files.
	ErrNotRegularFile = errors.New("not a regular file")

	// ErrEmptyFile rejects zero-byte files.
	ErrEmptyFile = errors.New("empty file")

	// ErrDoubleExtension rejects names like invoice.csv.exe.
	ErrDoubleExtension = errors.New("file name carries more than one extension")
)

// UnsupportedFormatError reports a file extension the parser cannot handle.
type UnsupportedFormatError struct {
	Extension string
}

func (e UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported file format %q", e.Extension)
}

var supportedFormats = map[string]string{
	".csv":  "csv",
	".xml":  "xml",
	".xlsx": "xlsx",
}

// Publisher is the outbound event contract.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

// Service validates carrier invoice files and announces accepted ones with
// a fresh correlation id.
type Service struct {
	bus         Publisher
	logger      *zap.SugaredLogger
	storageRoot string
	now         func() time.Time
	newID       func() string
}

// Option configures the service.
type Option func(*Service)

// WithStorageRoot sets the directory uploads are written to.
func WithStorageRoot(root string) Option {
	return func(s *Service) {
		if root != "" {
			s.storageRoot = root
		}
	}
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides the correlation id generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewService constructs an ingest service.
func NewService(bus Publisher, logger *zap.SugaredLogger, opts ...Option) (*Service, error) {
	if bus == nil {
		return nil, errors.New("ingest service: nil bus")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	svc := &Service{
		bus:         bus,
		logger:      logger,
		storageRoot: os.TempDir(),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Store validates the file at path and publishes FileStored. The returned
// correlation id threads through every downstream event for this file.
func (s *Service) Store(ctx context.Context, path string, metadata map[string]string) (string, error) {
	start := s.now()
	correlationID, err := s.store(ctx, path, metadata)
	if err != nil {
		metrics.ObserveIngest(metrics.ResultError, s.now().Sub(start))
		metrics.IncIngestError(ingestErrorReason(err))
		return "", err
	}
	metrics.ObserveIngest(metrics.ResultSuccess, s.now().Sub(start))
	return correlationID, nil
}

func (s *Service) store(ctx context.Context, path string, metadata map[string]string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	format, err := validateName(filepath.Base(path))
	if err != nil {
		return "", err
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", ErrNotRegularFile
	}
	if info.Size() == 0 {
		return "", ErrEmptyFile
	}

	correlationID := s.newID()
	event := events.FileStored{
		CorrelationID: correlationID,
		Path:          path,
		Format:        format,
		Size:          info.Size(),
		Metadata:      metadata,
		OccurredAt:    s.now().UTC(),
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		return "", fmt.Errorf("publish file stored: %w", err)
	}
	s.logger.Infow("invoice file accepted",
		"correlation_id", correlationID,
		"path", path,
		"format", format,
		"size", info.Size(),
	)
	return correlationID, nil
}

// StoreUpload writes an uploaded file under the storage root, then validates
// and announces it like Store.
func (s *Service) StoreUpload(ctx context.Context, filename string, content io.Reader, metadata map[string]string) (string, error) {
	if filename == "" {
		return "", ErrEmptyPath
	}
	if _, err := validateName(filepath.Base(filename)); err != nil {
		metrics.IncIngestError(ingestErrorReason(err))
		return "", err
	}

	dir := filepath.Join(s.storageRoot, "incoming")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	target := filepath.Join(dir, fmt.Sprintf("%d-%s", s.now().UnixNano(), filepath.Base(filename)))
	out, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(out, content); err != nil {
		out.Close()
		os.Remove(target)
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}
	return s.Store(ctx, target, metadata)
}

// validateName checks the extension and returns the canonical format name.
func validateName(name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	format, ok := supportedFormats[ext]
	if !ok {
		return "", UnsupportedFormatError{Extension: ext}
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if inner := strings.ToLower(filepath.Ext(base)); inner != "" {
		if _, known := supportedFormats[inner]; known {
			return "", ErrDoubleExtension
		}
	}
	return format, nil
}

func ingestErrorReason(err error) string {
	var unsupported UnsupportedFormatError
	switch {
	case errors.Is(err, ErrEmptyPath):
		return "empty_path"
	case errors.Is(err, ErrNotRegularFile):
		return "not_regular"
	case errors.Is(err, ErrEmptyFile):
		return "empty_file"
	case errors.Is(err, ErrDoubleExtension):
		return "double_extension"
	case errors.As(err, &unsupported):
		return "unsupported_format"
	default:
		return "unknown"
	}
}
