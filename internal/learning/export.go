package learning

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/khanglvm/skill-hub/internal/codec"
	"github.com/khanglvm/skill-hub/internal/storage"
)

// Format is a corpus serialization.
type Format string

const (
	// FormatJSONL writes one JSON object per line.
	FormatJSONL Format = "jsonl"

	// FormatCBOR writes a CBOR sequence (RFC 8742).
	FormatCBOR Format = "cbor"
)

// ParseFormat validates a format name. Empty means JSONL.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case "":
		return FormatJSONL, nil
	case FormatJSONL, FormatCBOR:
		return f, nil
	default:
		return "", fmt.Errorf("unknown export format %q (expected jsonl or cbor)", name)
	}
}

// ExportOptions controls WriteCorpus.
type ExportOptions struct {
	Format   Format
	Compress bool // zstd
}

type patternEncoder interface {
	Encode(v any) error
}

// WriteCorpus serializes patterns to w and returns how many were written.
// On error the output is truncated at the failing record.
func WriteCorpus(w io.Writer, patterns iter.Seq2[storage.Pattern, error], opts ExportOptions) (n int, err error) {
	if opts.Compress {
		zw, zerr := zstd.NewWriter(w)
		if zerr != nil {
			return 0, fmt.Errorf("failed to create zstd writer: %w", zerr)
		}
		defer func() {
			if cerr := zw.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to flush zstd stream: %w", cerr)
			}
		}()
		w = zw
	}

	var enc patternEncoder
	switch opts.Format {
	case FormatCBOR:
		enc = codec.NewEncoder(w)
	case FormatJSONL, "":
		enc = json.NewEncoder(w)
	default:
		return 0, fmt.Errorf("unknown export format %q", opts.Format)
	}

	for p, perr := range patterns {
		if perr != nil {
			return n, fmt.Errorf("failed to read corpus: %w", perr)
		}
		if err := enc.Encode(p); err != nil {
			return n, fmt.Errorf("failed to encode pattern %s: %w", p.ID, err)
		}
		n++
	}
	return n, nil
}

// ReadCorpus decodes a stream written by WriteCorpus.
func ReadCorpus(r io.Reader, opts ExportOptions) iter.Seq2[storage.Pattern, error] {
	return func(yield func(storage.Pattern, error) bool) {
		if opts.Compress {
			zr, err := zstd.NewReader(r)
			if err != nil {
				yield(storage.Pattern{}, fmt.Errorf("failed to create zstd reader: %w", err))
				return
			}
			defer zr.Close()
			r = zr
		}

		var decode func(any) error
		switch opts.Format {
		case FormatCBOR:
			decode = codec.NewDecoder(r).Decode
		default:
			decode = json.NewDecoder(r).Decode
		}

		for {
			var p storage.Pattern
			err := decode(&p)
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(storage.Pattern{}, fmt.Errorf("failed to decode pattern: %w", err))
				return
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}
