package export

// ============================================================================
// 檔案 Writer：JSON / 純文字 / msgpack
//
// 所有檔案都使用原子性寫入（temp file + rename），讀取端不會看到寫到一半的檔案。
// 檔名格式: paths_<yyyyMMdd_HHmmss>_<run id 前 8 碼>.<ext>
// ============================================================================

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/shamaton/msgpack/v2"
)

// JSONWriter 以縮排 JSON 寫入目錄
type JSONWriter struct {
	Dir string
}

func (w JSONWriter) Write(d Dataset) (string, error) {
	return writeAtomic(w.Dir, fileName(d, "json"), func(f io.Writer) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	})
}

// MsgpackWriter 以 msgpack 寫入目錄
type MsgpackWriter struct {
	Dir string
}

func (w MsgpackWriter) Write(d Dataset) (string, error) {
	return writeAtomic(w.Dir, fileName(d, "msgpack"), func(f io.Writer) error {
		return msgpack.MarshalWrite(f, d)
	})
}

// TextWriter 寫入人類可讀的報告
type TextWriter struct {
	Dir string
}

func (w TextWriter) Write(d Dataset) (string, error) {
	return writeAtomic(w.Dir, fileName(d, "txt"), func(f io.Writer) error {
		return WriteReport(f, d)
	})
}

// WriteReport 將資料集以文字格式寫入 out
func WriteReport(out io.Writer, d Dataset) error {
	bw := bufio.NewWriter(out)

	fmt.Fprintf(bw, "run %s  %s\n", d.RunID, d.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(bw, "grid %dx%d  fingerprint %s\n", d.GridWidth, d.GridHeight, d.Fingerprint)
	fmt.Fprintf(bw, "paths %d  successful %d  truncated %d  success rate %.1f%%\n",
		d.Stats.Total, d.Stats.Successful, d.Stats.Truncated, d.Stats.SuccessRate*100)
	fmt.Fprintf(bw, "avg length %.2f  avg time %.3fms\n\n", d.Stats.AvgLength, d.Stats.AvgTimeMs)

	for _, p := range d.Paths {
		fmt.Fprintf(bw, "#%d %s → %s  %s  length=%d cost=%d",
			p.ID, p.Start, p.End, status(p), p.Length, p.Cost)
		if p.Timed {
			fmt.Fprintf(bw, " time=%.3fms", p.TimeMs)
		}
		bw.WriteString("\n")
		if p.Coordinates != "" {
			fmt.Fprintf(bw, "  %s\n", p.Coordinates)
		}
		for _, row := range p.Map {
			fmt.Fprintf(bw, "  %s\n", row)
		}
	}
	return bw.Flush()
}

func status(p Record) string {
	switch {
	case p.Success:
		return "SUCCESS"
	case p.Truncated:
		return "TRUNCATED"
	default:
		return "FAILED"
	}
}

func fileName(d Dataset, ext string) string {
	id := d.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("paths_%s_%s.%s", d.Timestamp.Format("20060102_150405"), id, ext)
}

// writeAtomic 寫入臨時檔案後 rename 成最終檔名
func writeAtomic(dir, name string, encode func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export dir: %w", err)
	}

	path := filepath.Join(dir, name)
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if err := encode(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to encode %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to rename export: %w", err)
	}
	return path, nil
}
