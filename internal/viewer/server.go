package viewer

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/golang/glog"
)

const indexPage = `<!DOCTYPE html>
<html>
<body>
<h1>Lidar Scan</h1>
<p>refreshed every 0.5 secs. Press S to save a screenshot. <a href="/chart">interactive chart</a></p>
<img width=900 src="/map.png" id="reloader" onload="setTimeout(function() { document.getElementById('reloader').src = '/map.png?' + Date.now() }, 500)" />
<script>
document.addEventListener('keydown', function(e) {
	if (e.key === 's' || e.key === 'S') { fetch('/save', {method: 'POST'}) }
})
</script>
</body>
</html>
`

// NewHandler serves the live page of a session.
func NewHandler(s *Session) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write([]byte(indexPage)); err != nil {
			glog.Warningf("Unable to write page: %v", err)
		}
	})

	mux.HandleFunc("/map.png", func(w http.ResponseWriter, r *http.Request) {
		_, image := s.Snapshot()
		if image == nil {
			http.Error(w, "no scan yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(image)))
		w.Header().Set("Cache-Control", "no-store")
		if _, err := w.Write(image); err != nil {
			glog.Warningf("Unable to write image: %v", err)
		}
	})

	mux.HandleFunc("/chart", func(w http.ResponseWriter, r *http.Request) {
		points, _ := s.Snapshot()
		var buf bytes.Buffer
		if err := s.Figure().WriteHTML(&buf, points); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	})

	mux.HandleFunc("/save", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.RequestSave()
		w.WriteHeader(http.StatusAccepted)
	})

	return mux
}

// Server runs the live page in the background.
type Server struct {
	srv *http.Server
}

// Serve starts serving the session on addr.
func Serve(addr string, s *Session) *Server {
	srv := &http.Server{Addr: addr, Handler: NewHandler(s)}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			glog.Errorf("Live page stopped: %v", err)
		}
	}()
	glog.Infof("Live page on http://%s/", addr)
	return &Server{srv: srv}
}

// Close shuts the server down.
func (sv *Server) Close(ctx context.Context) error {
	return sv.srv.Shutdown(ctx)
}
