package retrieve

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"marksbot/internal/components/assert"
	"marksbot/internal/components/telemetry"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	report_retriever_retrieve = "retriever.retrieve"
	report_artifact_remove    = "artifact.remove"
)

var tracer = otel.Tracer("marksbot/retrieve")

// ChunkSize is the size of the buffer the response body is copied through.
const ChunkSize = 8192

// fallbackName is used when the url has no usable final path segment.
const fallbackName = "download"

// StatusError is returned when the file server responds with anything other
// than 200 OK.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("retrieve %s: unexpected status %d", e.URL, e.Code)
}

// Artifact is a file retrieved to local disk.
type Artifact struct {
	// Path is the location of the file, its base name is derived from the url.
	Path string
	Size int64
}

// Name returns the file name of the artifact.
func (a Artifact) Name() string {
	return filepath.Base(a.Path)
}

// Remove deletes the artifact along with the directory created for it.
func (a Artifact) Remove() error {
	if a.Path == "" {
		return nil
	}
	return os.RemoveAll(filepath.Dir(a.Path))
}

type Options struct {
	// Timeout bounds a whole retrieval including the body, defaults to 2m.
	Timeout time.Duration
	// Dir is where artifacts are created, defaults to os.TempDir().
	Dir string
}

// Retriever downloads files to transient local artifacts.
type Retriever struct {
	http *resty.Client
	dir  string
	tel  telemetry.API
}

func NewRetriever(opts Options, tel telemetry.API) *Retriever {
	assert.NotNil(tel, "tel")

	tel = telemetry.NewScopedAPI("retrieve", tel)

	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.Dir == "" {
		opts.Dir = os.TempDir()
	}

	client := resty.New()
	// result files are hosted next to the portal which presents the same broken chain
	client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	client.SetTimeout(opts.Timeout)
	telemetry.InstrumentResty(client, tel)

	return &Retriever{
		http: client,
		dir:  opts.Dir,
		tel:  tel,
	}
}

// ArtifactName derives a file name from the final path segment of link.
func ArtifactName(link string) string {
	parsed, err := url.Parse(link)
	if err != nil {
		return fallbackName
	}
	segment := path.Base(parsed.EscapedPath())
	if segment == "/" || segment == "." {
		return fallbackName
	}
	if unescaped, err := url.PathUnescape(segment); err == nil {
		segment = unescaped
	}
	// an escaped separator must not let the name leave its directory
	segment = strings.ReplaceAll(segment, "/", "_")
	segment = strings.ReplaceAll(segment, "\\", "_")
	segment = strings.TrimSpace(segment)
	if segment == "" || segment == "." || segment == ".." {
		return fallbackName
	}
	return segment
}

// Retrieve streams the file at link to a new artifact. The caller owns the
// artifact and must Remove it once it has been handed off.
func (r *Retriever) Retrieve(ctx context.Context, link string) (Artifact, error) {
	ctx, span := tracer.Start(ctx, "retriever:Retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("url", link))

	artifact, err := r.retrieve(ctx, link)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to retrieve")
		r.tel.ReportWarning(report_retriever_retrieve, err, link)
		telemetry.DownloadsTotal.WithLabelValues("failed").Inc()
		return Artifact{}, err
	}

	telemetry.DownloadsTotal.WithLabelValues("ok").Inc()
	r.tel.ReportDebug("retrieved", link, artifact.Path, artifact.Size)
	return artifact, nil
}

func (r *Retriever) retrieve(ctx context.Context, link string) (Artifact, error) {
	res, err := r.http.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(link)
	if err != nil {
		return Artifact{}, fmt.Errorf("retrieve %s: %w", link, err)
	}
	body := res.RawBody()
	defer body.Close()

	if res.StatusCode() != http.StatusOK {
		return Artifact{}, &StatusError{URL: link, Code: res.StatusCode()}
	}

	dir, err := os.MkdirTemp(r.dir, "marksbot-*")
	if err != nil {
		return Artifact{}, fmt.Errorf("create artifact dir: %w", err)
	}
	artifact := Artifact{Path: filepath.Join(dir, ArtifactName(link))}

	size, err := writeChunked(artifact.Path, body)
	if err != nil {
		removeErr := artifact.Remove()
		if removeErr != nil {
			r.tel.ReportBroken(report_artifact_remove, removeErr, artifact.Path)
		}
		return Artifact{}, fmt.Errorf("retrieve %s: %w", link, err)
	}
	artifact.Size = size

	return artifact, nil
}

// onlyWriter and onlyReader hide ReaderFrom/WriterTo so io.CopyBuffer goes
// through the fixed size buffer.
type onlyWriter struct{ io.Writer }
type onlyReader struct{ io.Reader }

func writeChunked(dest string, body io.Reader) (int64, error) {
	file, err := os.Create(dest)
	if err != nil {
		return 0, err
	}

	buf := make([]byte, ChunkSize)
	size, err := io.CopyBuffer(onlyWriter{file}, onlyReader{body}, buf)
	closeErr := file.Close()
	if err != nil {
		return size, err
	}
	if closeErr != nil {
		return size, closeErr
	}
	return size, nil
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.Code == code
}
