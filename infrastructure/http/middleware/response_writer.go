package middleware

import "net/http"

// responseWriter records the status and size, and optionally streams the
// body through a leak scanner, while passing everything through.
type responseWriter struct {
	http.ResponseWriter
	status      int
	size        int
	wroteHeader bool

	scan *leakScanner
}

func newResponseWriter(w http.ResponseWriter, scan bool) *responseWriter {
	rw := &responseWriter{ResponseWriter: w}
	if scan {
		rw.scan = &leakScanner{}
	}
	return rw
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	if rw.scan != nil {
		rw.scan.Write(b)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// Status is the written status, 200 when the handler wrote nothing.
func (rw *responseWriter) Status() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

// LeakedFields ends the leak scan and returns its findings. It is nil when
// scanning was off or the body was not JSON.
func (rw *responseWriter) LeakedFields() []string {
	if rw.scan == nil {
		return nil
	}
	return rw.scan.Finish()
}

// abortScan releases the scanner when the handler did not return normally.
func (rw *responseWriter) abortScan() {
	if rw.scan != nil {
		rw.scan.Abort()
	}
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
