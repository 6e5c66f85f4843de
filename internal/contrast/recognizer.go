package contrast

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/nbaudit/internal/raster"
)

// Word is one recognized word with its confidence (0-100) and pixel box.
// Box spans left,top to left+width,top+height; analysis treats both corners
// as inclusive.
type Word struct {
	Text       string
	Confidence float64
	Box        image.Rectangle
}

// Recognizer finds words in an image.
type Recognizer interface {
	Recognize(ctx context.Context, s *raster.Sample) ([]Word, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, s *raster.Sample) ([]Word, error)

// Recognize calls f.
func (f RecognizerFunc) Recognize(ctx context.Context, s *raster.Sample) ([]Word, error) {
	return f(ctx, s)
}

// Tesseract runs the tesseract CLI, feeding the sample as PNG on stdin and
// reading word rows from its TSV output.
type Tesseract struct {
	Command  string        // executable, default "tesseract"
	Language string        // tesseract language code, default "eng"
	Timeout  time.Duration // 0 means no timeout
}

// Recognize implements Recognizer.
func (t *Tesseract) Recognize(ctx context.Context, s *raster.Sample) ([]Word, error) {
	command := t.Command
	if command == "" {
		command = "tesseract"
	}
	lang := t.Language
	if lang == "" {
		lang = "eng"
	}
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	var input bytes.Buffer
	if err := s.EncodePNG(&input); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command, "stdin", "stdout", "-l", lang, "tsv")
	cmd.Stdin = &input
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", command, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", command, err)
	}
	return ParseTSV(&stdout)
}

// ParseTSV reads tesseract TSV output and returns the word-level rows.
// Rows with empty text are dropped.
func ParseTSV(r io.Reader) ([]Word, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var words []Word
	line := 0
	for scanner.Scan() {
		line++
		row := scanner.Text()
		if line == 1 && strings.HasPrefix(row, "level") {
			continue
		}
		fields := strings.Split(row, "\t")
		if len(fields) < 12 {
			continue
		}
		// level: 1 page, 2 block, 3 paragraph, 4 line, 5 word
		if fields[0] != "5" {
			continue
		}
		text := strings.TrimSpace(strings.Join(fields[11:], "\t"))
		if text == "" {
			continue
		}

		nums := make([]int, 4)
		for i := range nums {
			n, err := strconv.Atoi(fields[6+i])
			if err != nil {
				return nil, fmt.Errorf("tsv line %d: bad box field %q", line, fields[6+i])
			}
			nums[i] = n
		}
		conf, err := strconv.ParseFloat(fields[10], 64)
		if err != nil {
			return nil, fmt.Errorf("tsv line %d: bad confidence %q", line, fields[10])
		}

		left, top, width, height := nums[0], nums[1], nums[2], nums[3]
		words = append(words, Word{
			Text:       text,
			Confidence: conf,
			Box:        image.Rect(left, top, left+width, top+height),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read tsv: %w", err)
	}
	return words, nil
}
