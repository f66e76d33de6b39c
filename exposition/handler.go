// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package exposition

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/siemens/dockerprobe"

	log "github.com/sirupsen/logrus"
)

// MetricsPath is the path the metrics are served at.
const MetricsPath = "/metrics"

const landingPage = `<html>
<head><title>Docker Probe</title></head>
<body>
<h1>Docker Probe</h1>
<p><a href="` + MetricsPath + `">Metrics</a></p>
</body>
</html>
`

// Handler returns an HTTP handler running a fresh probe for each GET request
// to [MetricsPath] and rendering its snapshot, together with the prober's
// lifetime metrics. Engine failures never turn into HTTP errors; instead, they
// show up in the failure counter and in missing samples. A client hanging up
// early doesn't cut the probe short.
//
// HEAD requests to [MetricsPath] only return the headers, without probing.
// The root path serves a small landing page; all other paths are not found.
func Handler(p *dockerprobe.Prober) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(MetricsPath, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
		case http.MethodHead:
			w.Header().Set("Content-Type", ContentType)
			w.WriteHeader(http.StatusOK)
			return
		default:
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap := p.Probe(r.Context())
		var body bytes.Buffer
		if err := Render(&body, snap, p.Collectors()...); err != nil {
			log.Errorf("probe %s: %s", snap.ID, err.Error())
			http.Error(w, "cannot render metrics", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(body.Len()))
		w.WriteHeader(http.StatusOK)
		_, _ = body.WriteTo(w)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(landingPage))
	})
	return mux
}
