package archive

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"ExtremaSentinel/internal/model"
)

func sampleBars() []model.Bar {
	t0 := time.Date(2024, 1, 10, 3, 45, 0, 0, time.UTC)
	d := decimal.RequireFromString
	return []model.Bar{
		{Time: t0, Open: d("245"), High: d("246.5"), Low: d("244.25"), Close: d("246"), Volume: 1200},
		{Time: t0.Add(5 * time.Minute), Open: d("246"), High: d("247"), Low: d("245.5"), Close: d("246.75"), Volume: 900},
	}
}

type fakeS3 struct {
	bucket, key string
	body        []byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.bucket, f.key = *in.Bucket, *in.Key
	f.body, _ = io.ReadAll(in.Body)
	return &s3.PutObjectOutput{}, nil
}

func TestArchiverCSV(t *testing.T) {
	dir := t.TempDir()
	a, err := New(dir, "csv", nil)
	if err != nil {
		t.Fatal(err)
	}
	path, err := a.Save(context.Background(), "PETRONET.NS", "2024-01-10", sampleBars())
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(dir, "PETRONET.NS", "PETRONET.NS_2024-01-10.csv"); path != want {
		t.Errorf("path = %s, want %s", path, want)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[0][0] != "time" {
		t.Fatalf("rows = %v", rows)
	}
	if rows[1][0] != "2024-01-10T03:45:00Z" || rows[1][2] != "246.5" || rows[1][5] != "1200" {
		t.Errorf("row 1 = %v", rows[1])
	}
}

func TestArchiverJSON(t *testing.T) {
	a, err := New(t.TempDir(), "json", nil)
	if err != nil {
		t.Fatal(err)
	}
	path, err := a.Save(context.Background(), "X", "2024-01-10", sampleBars())
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var rows []BarRecord
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[1].Close != 246.75 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestTextArchivesKeepExactPrices(t *testing.T) {
	precise := sampleBars()
	precise[0].High = decimal.RequireFromString("246.123456789012345678")

	for _, format := range []string{"csv", "json"} {
		t.Run(format, func(t *testing.T) {
			a, err := New(t.TempDir(), format, nil)
			if err != nil {
				t.Fatal(err)
			}
			path, err := a.Save(context.Background(), "X", "2024-01-10", precise)
			if err != nil {
				t.Fatal(err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(data), "246.123456789012345678") {
				t.Errorf("exact price missing from %s archive:\n%s", format, data)
			}
		})
	}
}

func TestArchiverParquet(t *testing.T) {
	a, err := New(t.TempDir(), "parquet", nil)
	if err != nil {
		t.Fatal(err)
	}
	path, err := a.Save(context.Background(), "X", "2024-01-10", sampleBars())
	if err != nil {
		t.Fatal(err)
	}
	rows, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0].Low != 244.25 || rows[0].Volume != 1200 {
		t.Errorf("rows = %+v", rows)
	}
}

func TestArchiverUploads(t *testing.T) {
	fake := &fakeS3{}
	up := &S3Uploader{client: fake, bucket: "bars", prefix: "intraday"}
	a, err := New(t.TempDir(), "csv", up)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Save(context.Background(), "^NSEI", "2024-01-10", sampleBars()); err != nil {
		t.Fatal(err)
	}
	if fake.bucket != "bars" || fake.key != "intraday/_NSEI/_NSEI_2024-01-10.csv" {
		t.Errorf("uploaded to %s/%s", fake.bucket, fake.key)
	}
	if len(fake.body) == 0 {
		t.Error("empty upload body")
	}
}

func TestArchiverSkipsEmpty(t *testing.T) {
	a, _ := New(t.TempDir(), "csv", nil)
	path, err := a.Save(context.Background(), "X", "2024-01-10", nil)
	if err != nil || path != "" {
		t.Errorf("got %q, %v", path, err)
	}
}

func TestNewUnknownFormat(t *testing.T) {
	if _, err := New(t.TempDir(), "xlsx", nil); err == nil {
		t.Fatal("expected error")
	}
}
