package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strconv"

	"github.com/fixora/condoguard/application/security/sanitizer"
)

var errScanAborted = errors.New("leak scan aborted")

// leakScanner feeds a response body to ScanLeaks as it is written, so the
// whole body is inspected without being buffered. Bodies whose first
// non-space byte is not { or [ are skipped, whatever the Content-Type says.
type leakScanner struct {
	pw      *io.PipeWriter
	result  chan []string
	decided bool
	active  bool
}

func (s *leakScanner) Write(b []byte) {
	if !s.decided {
		trimmed := bytes.TrimLeft(b, " \t\r\n")
		if len(trimmed) == 0 {
			return
		}
		s.decided = true
		if trimmed[0] != '{' && trimmed[0] != '[' {
			return
		}
		s.start()
	}
	if s.active {
		_, _ = s.pw.Write(b)
	}
}

func (s *leakScanner) start() {
	pr, pw := io.Pipe()
	s.pw = pw
	s.result = make(chan []string, 1)
	s.active = true

	go func() {
		leaked, _ := ScanLeaks(pr)
		// keep the writer unblocked after a syntax error
		_, _ = io.Copy(io.Discard, pr)
		s.result <- leaked
	}()
}

// Finish ends the body and returns the leaked field paths.
func (s *leakScanner) Finish() []string {
	if !s.active {
		return nil
	}
	s.active = false
	_ = s.pw.Close()
	return <-s.result
}

// Abort stops the scan without waiting for a result.
func (s *leakScanner) Abort() {
	if !s.active {
		return
	}
	s.active = false
	_ = s.pw.CloseWithError(errScanAborted)
}

type scanFrame struct {
	object  bool
	path    string
	key     string
	index   int
	wantKey bool
}

func (f *scanFrame) childPath() string {
	if f.object {
		return sanitizer.JoinPath(f.path, f.key)
	}
	p := sanitizer.JoinPath(f.path, strconv.Itoa(f.index))
	f.index++
	return p
}

// ScanLeaks walks JSON tokens from r and returns the sorted paths of
// sensitive keys at any depth whose values are not already redacted. On a
// syntax error it returns what it found so far with the error.
func ScanLeaks(r io.Reader) ([]string, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var stack []*scanFrame
	seen := map[string]struct{}{}

	var err error
	for {
		var tok json.Token
		tok, err = dec.Token()
		if err != nil {
			break
		}

		if d, ok := tok.(json.Delim); ok && (d == '}' || d == ']') {
			stack = stack[:len(stack)-1]
			if n := len(stack); n > 0 && stack[n-1].object {
				stack[n-1].wantKey = true
			}
			continue
		}

		var top *scanFrame
		if n := len(stack); n > 0 {
			top = stack[n-1]
		}
		if top != nil && top.object && top.wantKey {
			top.key, _ = tok.(string)
			top.wantKey = false
			continue
		}

		p := ""
		if top != nil {
			p = top.childPath()
			if top.object && sanitizer.IsSensitiveKey(top.key) && tok != sanitizer.RedactedMarker {
				seen[p] = struct{}{}
			}
		}

		if d, ok := tok.(json.Delim); ok {
			stack = append(stack, &scanFrame{object: d == '{', path: p, wantKey: d == '{'})
			continue
		}
		if top != nil && top.object {
			top.wantKey = true
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)

	if errors.Is(err, io.EOF) {
		return out, nil
	}
	return out, err
}
