package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/xtxerr/airq/internal/errors"
)

const sample = "Date;Time;CO(GT);PT08.S1(CO);T;;\n" +
	"10/03/2004;18.00.00;2,6;1360;13,6;;\n" +
	";;;;;;\n" +
	"\n" +
	"10/03/2004;19.00.00;2;1292;13,3;;\n"

func collect(t *testing.T, rows *Rows) []Row {
	t.Helper()
	var out []Row
	for rows.Next() {
		row, err := rows.Row()
		if err != nil {
			t.Fatalf("Row: %v", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	return out
}

func TestRows_SkipsEmptyRecords(t *testing.T) {
	rows := NewReader(strings.NewReader(sample))
	got := collect(t, rows)

	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0]["CO(GT)"] != "2,6" {
		t.Errorf("expected CO(GT)=2,6, got %q", got[0]["CO(GT)"])
	}
	if got[1]["Time"] != "19.00.00" {
		t.Errorf("expected Time=19.00.00, got %q", got[1]["Time"])
	}
	if _, ok := got[0][""]; ok {
		t.Error("unnamed trailing columns should be dropped")
	}

	header := rows.Header()
	if len(header) != 7 || header[0] != "Date" {
		t.Errorf("unexpected header %v", header)
	}
}

func TestRows_StripsBOMAndSpaces(t *testing.T) {
	in := "\ufeffDate ; Time ;CO(GT)\n10/03/2004;18:00:00;1\n"
	got := collect(t, NewReader(strings.NewReader(in)))

	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
	if got[0]["Date"] != "10/03/2004" {
		t.Errorf("expected Date column, got %v", got[0])
	}
	if got[0]["Time"] != "18:00:00" {
		t.Errorf("expected Time column, got %v", got[0])
	}
}

func TestRows_ShortRecord(t *testing.T) {
	in := "Date;Time;CO(GT);T\n10/03/2004;18:00:00\n"
	got := collect(t, NewReader(strings.NewReader(in)))

	if len(got) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got))
	}
	if _, ok := got[0]["T"]; ok {
		t.Error("missing trailing field should be absent")
	}
}

func TestRows_EmptyInput(t *testing.T) {
	rows := NewReader(strings.NewReader(""))
	if rows.Next() {
		t.Fatal("expected no rows")
	}
	if rows.Err() != nil {
		t.Errorf("empty input is not an error: %v", rows.Err())
	}
}

func TestRows_LineNumbers(t *testing.T) {
	rows := NewReader(strings.NewReader(sample))
	var lines []int
	for rows.Next() {
		lines = append(lines, rows.Line())
	}
	if len(lines) != 2 || lines[0] != 2 || lines[1] != 5 {
		t.Errorf("expected lines [2 5], got %v", lines)
	}
}

type failingReader struct {
	data string
	read bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.read {
		f.read = true
		return copy(p, f.data), nil
	}
	return 0, io.ErrUnexpectedEOF
}

func TestRows_ReadErrorIsFatal(t *testing.T) {
	rows := NewNamedReader(&failingReader{data: "Date;Time\n10/03/2004;18:00:00\n"}, "broken.csv")

	n := 0
	for rows.Next() {
		n++
	}
	if n != 1 {
		t.Errorf("expected 1 row before failure, got %d", n)
	}

	err := rows.Err()
	if err == nil {
		t.Fatal("expected read error")
	}
	if !errors.Is(err, errors.ErrSourceIO) {
		t.Errorf("expected ErrSourceIO, got %v", err)
	}
	if !strings.Contains(err.Error(), "broken.csv") {
		t.Errorf("error should name the source: %v", err)
	}
	if rows.Next() {
		t.Error("Next after failure should return false")
	}
}

func TestOpener_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "air.csv")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	rc, err := NewOpener(S3Options{}).Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()

	got := collect(t, NewReader(rc))
	if len(got) != 2 {
		t.Errorf("expected 2 rows, got %d", len(got))
	}
}

func TestOpener_MissingFile(t *testing.T) {
	_, err := NewOpener(S3Options{}).Open(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, errors.ErrSourceIO) {
		t.Errorf("expected ErrSourceIO, got %v", err)
	}
}

func TestOpener_UnsupportedScheme(t *testing.T) {
	_, err := NewOpener(S3Options{}).Open(context.Background(), "ftp://host/air.csv")
	if !errors.Is(err, errors.ErrUnsupportedSource) {
		t.Errorf("expected ErrUnsupportedSource, got %v", err)
	}
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri     string
		bucket  string
		key     string
		wantErr bool
	}{
		{"s3://my-bucket/path/to/AirQualityUCI.csv", "my-bucket", "path/to/AirQualityUCI.csv", false},
		{"s3://bucket/key", "bucket", "key", false},
		{"s3://bucket-only/", "", "", true},
		{"s3:///key", "", "", true},
		{"/local/path.csv", "", "", true},
	}

	for _, tt := range tests {
		bucket, key, err := ParseS3URI(tt.uri)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseS3URI(%q) expected error", tt.uri)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseS3URI(%q): %v", tt.uri, err)
			continue
		}
		if bucket != tt.bucket || key != tt.key {
			t.Errorf("ParseS3URI(%q) = %s, %s; want %s, %s", tt.uri, bucket, key, tt.bucket, tt.key)
		}
	}
}

func TestOpener_S3ClientRetriesAfterFailedLoad(t *testing.T) {
	o := NewOpener(S3Options{Region: "eu-west-1", Endpoint: "http://127.0.0.1:9000", PathStyle: true})

	loads := 0
	o.loadConfig = func(ctx context.Context, _ ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		loads++
		if err := ctx.Err(); err != nil {
			return aws.Config{}, err
		}
		return aws.Config{Region: "eu-west-1"}, nil
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.Open(cancelled, "s3://air/AirQualityUCI.csv")
	if !errors.Is(err, errors.ErrSourceIO) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected ErrSourceIO wrapping context.Canceled, got %v", err)
	}

	first, err := o.s3Client(context.Background())
	if err != nil {
		t.Fatalf("s3Client after cancelled load: %v", err)
	}
	second, err := o.s3Client(context.Background())
	if err != nil {
		t.Fatalf("s3Client: %v", err)
	}

	if first != second {
		t.Error("expected the client to be reused once created")
	}
	if loads != 2 {
		t.Errorf("expected 2 config loads, got %d", loads)
	}
	if !first.Options().UsePathStyle {
		t.Error("expected path-style addressing")
	}
}
