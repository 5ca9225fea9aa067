package csvfeed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
)

// Disorder is a trade whose time is earlier than the trade before it.
type Disorder struct {
	Line     int
	Previous int64
	Current  int64
}

func (d Disorder) String() string {
	return fmt.Sprintf("line %d: %d follows %d", d.Line, d.Current, d.Previous)
}

// CheckOrder scans r and reports every out-of-order trade to fn. It returns
// the number of trades read.
func CheckOrder(ctx context.Context, r io.Reader, fn func(Disorder)) (int, error) {
	cr := newReader(r)
	var (
		prev  int64
		count int
	)
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("csv line %d: %w", line, err)
		}
		if line%100000 == 0 {
			if err := ctx.Err(); err != nil {
				return count, err
			}
		}
		tk, ok, err := parseRecord(rec)
		if err != nil {
			return count, fmt.Errorf("csv line %d: %w", line, err)
		}
		if !ok {
			continue
		}
		if count > 0 && tk.Time < prev {
			fn(Disorder{Line: line, Previous: prev, Current: tk.Time})
		}
		prev = tk.Time
		count++
	}
}

// LastTime returns the time of the final trade in the file at path.
func LastTime(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if st.Size() == 0 {
		return 0, fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}

	const tail = 256
	off := st.Size() - tail
	if off < 0 {
		off = 0
	}
	if _, err := f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	ticks, err := Read(context.Background(), skipPartialLine(f, off > 0), -1<<62, 0)
	if err != nil {
		return 0, err
	}
	if len(ticks) == 0 {
		return 0, fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}
	return ticks[len(ticks)-1].Time, nil
}

// skipPartialLine drops everything up to the first newline when reading
// from the middle of a file.
func skipPartialLine(r io.Reader, partial bool) io.Reader {
	if !partial {
		return r
	}
	b, _ := io.ReadAll(r)
	for i, c := range b {
		if c == '\n' {
			return bytes.NewReader(b[i+1:])
		}
	}
	return bytes.NewReader(nil)
}
