// Package export writes the measurement history to columnar files.
package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"netcheck/pkg/speedtest"
)

// Row is the Parquet schema of one result. Absent metrics are OPTIONAL
// columns left null.
type Row struct {
	TimestampMs     int64    `parquet:"name=timestamp_ms, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	DownloadMbps    *float64 `parquet:"name=download_mbps, type=DOUBLE, repetitiontype=OPTIONAL"`
	UploadMbps      *float64 `parquet:"name=upload_mbps, type=DOUBLE, repetitiontype=OPTIONAL"`
	LatencyMs       *float64 `parquet:"name=latency_ms, type=DOUBLE, repetitiontype=OPTIONAL"`
	JitterMs        *float64 `parquet:"name=jitter_ms, type=DOUBLE, repetitiontype=OPTIONAL"`
	LoadedLatencyMs *float64 `parquet:"name=loaded_latency_ms, type=DOUBLE, repetitiontype=OPTIONAL"`
	TTFBMs          *float64 `parquet:"name=ttfb_ms, type=DOUBLE, repetitiontype=OPTIONAL"`
	DNSMs           *float64 `parquet:"name=dns_ms, type=DOUBLE, repetitiontype=OPTIONAL"`
	QualityScore    *int32   `parquet:"name=quality_score, type=INT32, repetitiontype=OPTIONAL"`
	ServerLocation  *string  `parquet:"name=server_location, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	ServerIP        *string  `parquet:"name=server_ip, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	ClientIP        *string  `parquet:"name=client_ip, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
	ISP             *string  `parquet:"name=isp, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL"`
}

// RowFromResult maps a result to its Parquet row.
func RowFromResult(r speedtest.Result) Row {
	row := Row{
		TimestampMs:     r.Timestamp.UnixMilli(),
		DownloadMbps:    r.DownloadMbps,
		UploadMbps:      r.UploadMbps,
		LatencyMs:       r.LatencyMs,
		JitterMs:        r.JitterMs,
		LoadedLatencyMs: r.LoadedLatencyMs,
		TTFBMs:          r.TTFBMs,
		DNSMs:           r.DNSMs,
		ServerLocation:  r.ServerLocation,
		ServerIP:        r.ServerIP,
		ClientIP:        r.ClientIP,
		ISP:             r.ISP,
	}
	if r.QualityScore != nil {
		q := int32(*r.QualityScore)
		row.QualityScore = &q
	}
	return row
}

// WriteParquet writes history to path, replacing any existing file.
func WriteParquet(path string, history []speedtest.Result) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	file, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create parquet file: %w", err)
	}

	pw, err := writer.NewParquetWriter(file, new(Row), 1)
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, r := range history {
		if err := pw.Write(RowFromResult(r)); err != nil {
			_ = file.Close()
			return fmt.Errorf("failed to write result: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to stop parquet writer: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close parquet file: %w", err)
	}
	return nil
}
