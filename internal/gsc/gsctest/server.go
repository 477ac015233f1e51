// Package gsctest runs an in-process fake of the Search Console and Indexing
// APIs, plus arbitrary static files such as sitemaps.
package gsctest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

const (
	sitesPath    = "/webmasters/v3/sites"
	inspectPath  = "/v1/urlInspection/index:inspect"
	metadataPath = "/v3/urlNotifications/metadata"
	publishPath  = "/v3/urlNotifications:publish"
)

// Server is a scripted fake. Configure its fields before issuing requests.
type Server struct {
	*httptest.Server

	mu sync.Mutex
	// Sites lists accessible property identifiers.
	Sites []string
	// Sitemaps maps a property to its sitemap locations.
	Sitemaps map[string][]string
	// Coverage maps a page to its coverage state.
	Coverage map[string]string
	// InspectCodes forces an HTTP error status for a page's inspection.
	InspectCodes map[string]int
	// Metadata maps a page to successive metadata statuses; the last one repeats. Default 404.
	Metadata map[string][]int
	// PublishCode is returned by publish calls. Default 200.
	PublishCode int
	// Files serves static content by path, for sitemap documents.
	Files map[string]string

	inspected []string
	published []string
}

// New starts a fake server. Close it when done.
func New() *Server {
	s := &Server{
		Sitemaps:     make(map[string][]string),
		Coverage:     make(map[string]string),
		InspectCodes: make(map[string]int),
		Metadata:     make(map[string][]int),
		Files:        make(map[string]string),
		PublishCode:  http.StatusOK,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Endpoint returns the base URL to pass as an API endpoint override.
func (s *Server) Endpoint() string {
	return s.URL + "/"
}

// Inspected returns the pages inspected so far.
func (s *Server) Inspected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inspected...)
}

// Published returns the pages published so far.
func (s *Server) Published() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.published...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := r.URL.Path
	switch {
	case path == sitesPath:
		s.listSites(w)
	case strings.HasPrefix(path, sitesPath+"/") && strings.HasSuffix(path, "/sitemaps"):
		site := strings.TrimSuffix(strings.TrimPrefix(path, sitesPath+"/"), "/sitemaps")
		s.listSitemaps(w, site)
	case path == inspectPath:
		s.inspect(w, r)
	case path == metadataPath:
		s.metadata(w, r.URL.Query().Get("url"))
	case path == publishPath:
		s.publish(w, r)
	default:
		if body, ok := s.Files[path]; ok {
			w.Header().Set("Content-Type", "application/xml")
			fmt.Fprint(w, body)
			return
		}
		writeError(w, http.StatusNotFound)
	}
}

func (s *Server) listSites(w http.ResponseWriter) {
	entries := make([]map[string]string, 0, len(s.Sites))
	for _, site := range s.Sites {
		entries = append(entries, map[string]string{"siteUrl": site, "permissionLevel": "siteOwner"})
	}
	writeJSON(w, http.StatusOK, map[string]any{"siteEntry": entries})
}

func (s *Server) listSitemaps(w http.ResponseWriter, site string) {
	entries := make([]map[string]string, 0, len(s.Sitemaps[site]))
	for _, p := range s.Sitemaps[site] {
		entries = append(entries, map[string]string{"path": p})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sitemap": entries})
}

func (s *Server) inspect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InspectionURL string `json:"inspectionUrl"`
		SiteURL       string `json:"siteUrl"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest)
		return
	}
	s.inspected = append(s.inspected, req.InspectionURL)
	if code := s.InspectCodes[req.InspectionURL]; code != 0 {
		writeError(w, code)
		return
	}
	coverage, ok := s.Coverage[req.InspectionURL]
	if !ok {
		coverage = "URL is unknown to Google"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"inspectionResult": map[string]any{
			"indexStatusResult": map[string]any{"coverageState": coverage},
		},
	})
}

func (s *Server) metadata(w http.ResponseWriter, pageURL string) {
	code := http.StatusNotFound
	if codes := s.Metadata[pageURL]; len(codes) > 0 {
		code = codes[0]
		if len(codes) > 1 {
			s.Metadata[pageURL] = codes[1:]
		}
	}
	if code >= http.StatusBadRequest {
		writeError(w, code)
		return
	}
	writeJSON(w, code, map[string]any{
		"url":          pageURL,
		"latestUpdate": map[string]string{"url": pageURL, "type": "URL_UPDATED"},
	})
}

func (s *Server) publish(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL  string `json:"url"`
		Type string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest)
		return
	}
	s.published = append(s.published, req.URL)
	if s.PublishCode >= http.StatusBadRequest {
		writeError(w, s.PublishCode)
		return
	}
	writeJSON(w, s.PublishCode, map[string]any{
		"urlNotificationMetadata": map[string]any{
			"url":          req.URL,
			"latestUpdate": map[string]string{"url": req.URL, "type": req.Type},
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": http.StatusText(code),
		},
	})
}
