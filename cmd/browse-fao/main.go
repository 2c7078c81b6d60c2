package main

import (
	"database/sql"
	"encoding/json"
	"encoding/xml"
	"errors"
	"flag"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const defaultAddr = "127.0.0.1:18651"
const sitemapProtocolMaxURLs = 50000
const defaultSitemapChunkSize = 10000
const searchMinChars = 3
const searchPageSize = 10
const relatedSeriesLimit = 8
const homeSectionSize = 10

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s -path <path-to-cleaned-sqlite>\n", os.Args[0])
		flag.PrintDefaults()
	}

	dbPath := flag.String("path", "", "Path to a cleaned sqlite database written by process-fao-commodities")
	addr := flag.String("addr", defaultAddr, "HTTP listen address")
	sitemapChunkSize := flag.Int("sitemap-chunk-size", defaultSitemapChunkSize, "Max series URLs per sitemap file (capped at 50000)")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("missing -path")
	}
	if *sitemapChunkSize <= 0 {
		*sitemapChunkSize = defaultSitemapChunkSize
	}
	if *sitemapChunkSize > sitemapProtocolMaxURLs {
		*sitemapChunkSize = sitemapProtocolMaxURLs
	}

	if _, err := os.Stat(*dbPath); err != nil {
		log.Fatalf("sqlite path error: %v", err)
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		log.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	table, err := firstUserTable(db)
	if err != nil {
		log.Fatalf("find table: %v", err)
	}

	cols, err := tableColumns(db, table)
	if err != nil {
		log.Fatalf("load columns: %v", err)
	}
	for _, required := range []string{"country", "commodity", "product", "year"} {
		if !contains(cols, required) {
			log.Fatalf("column %q not found in table %q", required, table)
		}
	}
	unit, err := unitColumn(cols)
	if err != nil {
		log.Fatalf("detect unit column: %v", err)
	}

	mux := newMux(db, table, unit, *sitemapChunkSize)

	log.Printf("browse-fao listening on %s (table=%s unit=%s)", *addr, table, unit)
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func newMux(db *sql.DB, table, unit string, sitemapChunkSize int) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			log.Printf("health ping error: %v", err)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		total, err := countSeries(db, table)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			log.Printf("sitemap count error: %v", err)
			return
		}
		baseURL := requestBaseURL(r)
		payload := buildSitemapIndexXML(baseURL, total, sitemapChunkSize)
		writeXML(w, payload)
	})
	mux.HandleFunc("/sitemaps/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		pageNum, ok := parseSeriesSitemapPage(r.URL.Path)
		if !ok {
			http.NotFound(w, r)
			return
		}
		total, err := countSeries(db, table)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			log.Printf("sitemap count error: %v", err)
			return
		}
		if total == 0 {
			http.NotFound(w, r)
			return
		}
		pageCount := (total + sitemapChunkSize - 1) / sitemapChunkSize
		if pageNum < 1 || pageNum > pageCount {
			http.NotFound(w, r)
			return
		}
		offset := (pageNum - 1) * sitemapChunkSize
		keys, err := fetchSeriesKeysPage(db, table, sitemapChunkSize, offset)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			log.Printf("sitemap page error: %v", err)
			return
		}
		baseURL := requestBaseURL(r)
		payload := buildSeriesURLSetXML(baseURL, keys)
		writeXML(w, payload)
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			http.NotFound(w, r)
			return
		}
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		page := 1
		var searchData any = nil
		var searchError string
		if q != "" {
			var ok bool
			if len([]rune(q)) < searchMinChars {
				searchError = fmt.Sprintf("query must be at least %d characters", searchMinChars)
			} else if page, ok = parsePageQueryParam(r, "page", 1); !ok {
				searchError = "invalid page"
			} else {
				offset, ok := pageOffset(page, searchPageSize)
				if !ok {
					searchError = "page value is too large"
				} else {
					payload, err := fetchSearchPayload(db, table, unit, q, page, searchPageSize, offset)
					if err != nil {
						searchError = "Could not load search results right now."
						log.Printf("search error: %v", err)
					} else {
						searchData = payload
					}
				}
			}
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := searchPageTemplate.Execute(w, map[string]any{
			"title":            "Search | faotidy",
			"search_data_json": mustJSONTemplateJS(searchData),
			"search_error":     searchError,
		}); err != nil {
			log.Printf("template error: %v", err)
		}
	})
	mux.HandleFunc("/series", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/series" {
			http.NotFound(w, r)
			return
		}
		country := strings.TrimSpace(r.URL.Query().Get("country"))
		commodity := strings.TrimSpace(r.URL.Query().Get("commodity"))
		if country == "" || commodity == "" {
			http.Error(w, "missing country or commodity", http.StatusBadRequest)
			return
		}
		payload, err := fetchSeriesPayload(db, table, unit, country, commodity)
		if errors.Is(err, errSeriesNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			log.Printf("series payload error: %v", err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := seriesPageTemplate.Execute(w, map[string]any{
			"title":            fmt.Sprintf("%s / %s | faotidy", country, commodity),
			"series_data_json": mustJSONTemplateJS(payload),
		}); err != nil {
			log.Printf("template error: %v", err)
		}
	})
	mux.HandleFunc("/api/series", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/series" {
			http.NotFound(w, r)
			return
		}
		country := strings.TrimSpace(r.URL.Query().Get("country"))
		commodity := strings.TrimSpace(r.URL.Query().Get("commodity"))
		if country == "" || commodity == "" {
			http.Error(w, "missing country or commodity", http.StatusBadRequest)
			return
		}
		payload, err := fetchSeriesPayload(db, table, unit, country, commodity)
		if errors.Is(err, errSeriesNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			log.Printf("series payload error: %v", err)
			return
		}
		writeJSON(w, payload)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		payload, err := fetchHomePayload(db, table, unit)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			log.Printf("home payload error: %v", err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := homePageTemplate.Execute(w, map[string]any{
			"title":          "faotidy",
			"home_data_json": mustJSONTemplateJS(payload),
		}); err != nil {
			log.Printf("template error: %v", err)
		}
	})
	return mux
}

func mustJSONTemplateJS(v any) template.JS {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("json marshal error for template data: %v", err)
		return template.JS("null")
	}
	return template.JS(b)
}

type sitemapIndexXML struct {
	XMLName xml.Name        `xml:"sitemapindex"`
	Xmlns   string          `xml:"xmlns,attr"`
	Items   []sitemapRefXML `xml:"sitemap"`
}

type sitemapRefXML struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

type urlSetXML struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	Items   []urlItemXML `xml:"url"`
}

type urlItemXML struct {
	Loc string `xml:"loc"`
}

func writeXML(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	_, _ = w.Write([]byte(xml.Header))
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("xml encode error: %v", err)
	}
}

func buildSitemapIndexXML(baseURL string, total, chunkSize int) sitemapIndexXML {
	if chunkSize <= 0 {
		chunkSize = defaultSitemapChunkSize
	}
	if chunkSize > sitemapProtocolMaxURLs {
		chunkSize = sitemapProtocolMaxURLs
	}
	pageCount := 0
	if total > 0 {
		pageCount = (total + chunkSize - 1) / chunkSize
	}
	items := make([]sitemapRefXML, 0, max(pageCount, 1))
	if pageCount == 0 {
		pageCount = 1
	}
	now := time.Now().UTC().Format("2006-01-02")
	for i := 1; i <= pageCount; i++ {
		items = append(items, sitemapRefXML{
			Loc:     fmt.Sprintf("%s/sitemaps/series-%d.xml", baseURL, i),
			LastMod: now,
		})
	}
	return sitemapIndexXML{
		Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9",
		Items: items,
	}
}

func buildSeriesURLSetXML(baseURL string, keys []seriesKey) urlSetXML {
	items := make([]urlItemXML, 0, len(keys))
	for _, k := range keys {
		items = append(items, urlItemXML{
			Loc: baseURL + seriesPath(k.Country, k.Commodity),
		})
	}
	return urlSetXML{
		Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9",
		Items: items,
	}
}

func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if proto := strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")); proto != "" {
		if i := strings.Index(proto, ","); i >= 0 {
			proto = proto[:i]
		}
		scheme = strings.TrimSpace(proto)
	} else if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	if host == "" {
		host = "127.0.0.1:8080"
	}
	return scheme + "://" + host
}

func parseSeriesSitemapPage(path string) (int, bool) {
	const prefix = "/sitemaps/series-"
	const suffix = ".xml"
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return 0, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix)
	if raw == "" || strings.Contains(raw, "/") {
		return 0, false
	}
	n := 0
	for _, ch := range raw {
		if ch < '0' || ch > '9' {
			return 0, false
		}
		n = (n * 10) + int(ch-'0')
	}
	if n <= 0 {
		return 0, false
	}
	return n, true
}

// seriesPath builds the canonical link for one (country, commodity) series.
// url.Values.Encode sorts keys, so commodity always precedes country.
func seriesPath(country, commodity string) string {
	v := url.Values{}
	v.Set("country", country)
	v.Set("commodity", commodity)
	return "/series?" + v.Encode()
}

type seriesKey struct {
	Country   string
	Commodity string
}

func countSeries(db *sql.DB, table string) (int, error) {
	q := fmt.Sprintf(
		`SELECT COUNT(*) FROM (SELECT DISTINCT country, commodity FROM %s)`,
		quoteIdent(table),
	)
	var n int
	if err := db.QueryRow(q).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func fetchSeriesKeysPage(db *sql.DB, table string, limit, offset int) ([]seriesKey, error) {
	if limit <= 0 {
		limit = defaultSitemapChunkSize
	}
	q := fmt.Sprintf(
		`SELECT DISTINCT country, commodity FROM %s
		 ORDER BY country, commodity
		 LIMIT ? OFFSET ?`,
		quoteIdent(table),
	)
	rows, err := db.Query(q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]seriesKey, 0, limit)
	for rows.Next() {
		var country, commodity sql.NullString
		if err := rows.Scan(&country, &commodity); err != nil {
			return nil, err
		}
		if country.String == "" || commodity.String == "" {
			continue
		}
		out = append(out, seriesKey{Country: country.String, Commodity: commodity.String})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func firstUserTable(db *sql.DB) (string, error) {
	const q = `SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name LIMIT 1`
	var name string
	if err := db.QueryRow(q).Scan(&name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("no user tables found")
		}
		return "", err
	}
	return name, nil
}

func tableColumns(db *sql.DB, table string) ([]string, error) {
	q := fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table))
	rows, err := db.Query(q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %q has no columns", table)
	}
	return cols, nil
}

// unitColumn finds the measured column of a cleaned table. The cleaning
// pipeline names it after the dataset's unit, so exactly one of the two
// known units is expected.
func unitColumn(cols []string) (string, error) {
	for _, c := range []string{"tonnes", "usd"} {
		if contains(cols, c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("no unit column found (expected tonnes or usd, got %s)", strings.Join(cols, ", "))
}

var errSeriesNotFound = errors.New("series not found")

type seriesPoint struct {
	Year  *int64   `json:"year"`
	Value *float64 `json:"value"`
}

type relatedSeriesItem struct {
	Country    string `json:"country"`
	Commodity  string `json:"commodity"`
	Points     int    `json:"points"`
	Observed   int    `json:"observed"`
	SeriesPath string `json:"series_path"`
}

type seriesPayload struct {
	Country   string              `json:"country"`
	Commodity string              `json:"commodity"`
	Product   string              `json:"product"`
	Unit      string              `json:"unit"`
	Points    []seriesPoint       `json:"points"`
	Observed  int                 `json:"observed"`
	Total     *float64            `json:"total"`
	Related   []relatedSeriesItem `json:"related"`
}

func fetchSeriesPayload(db *sql.DB, table, unit, country, commodity string) (seriesPayload, error) {
	q := fmt.Sprintf(
		`SELECT product, year, %s FROM %s
		 WHERE country = ? AND commodity = ?
		 ORDER BY year IS NULL, year ASC`,
		quoteIdent(unit), quoteIdent(table),
	)
	rows, err := db.Query(q, country, commodity)
	if err != nil {
		return seriesPayload{}, err
	}
	defer rows.Close()

	payload := seriesPayload{
		Country:   country,
		Commodity: commodity,
		Unit:      unit,
	}
	total := 0.0
	for rows.Next() {
		var product sql.NullString
		var year sql.NullInt64
		var value sql.NullFloat64
		if err := rows.Scan(&product, &year, &value); err != nil {
			return seriesPayload{}, err
		}
		if product.Valid && product.String != "" {
			payload.Product = product.String
		}
		var pt seriesPoint
		if year.Valid {
			y := year.Int64
			pt.Year = &y
		}
		if value.Valid {
			v := value.Float64
			pt.Value = &v
			total += v
			payload.Observed++
		}
		payload.Points = append(payload.Points, pt)
	}
	if err := rows.Err(); err != nil {
		return seriesPayload{}, err
	}
	if len(payload.Points) == 0 {
		return seriesPayload{}, errSeriesNotFound
	}
	if payload.Observed > 0 {
		payload.Total = &total
	}

	related, err := fetchRelatedSeries(db, table, unit, payload.Product, country, commodity)
	if err != nil {
		return seriesPayload{}, err
	}
	payload.Related = related
	return payload, nil
}

// fetchRelatedSeries lists other series sharing the same product group,
// same-country series first.
func fetchRelatedSeries(db *sql.DB, table, unit, product, country, commodity string) ([]relatedSeriesItem, error) {
	if strings.TrimSpace(product) == "" {
		return nil, nil
	}
	q := fmt.Sprintf(
		`SELECT country, commodity, COUNT(*) AS points, COUNT(%s) AS observed
		 FROM %s
		 WHERE product = ? AND NOT (country = ? AND commodity = ?)
		 GROUP BY country, commodity
		 ORDER BY CASE WHEN country = ? THEN 0 ELSE 1 END, observed DESC, country ASC, commodity ASC
		 LIMIT %d`,
		quoteIdent(unit), quoteIdent(table), relatedSeriesLimit,
	)
	rows, err := db.Query(q, product, country, commodity, country)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []relatedSeriesItem
	for rows.Next() {
		var relCountry, relCommodity sql.NullString
		var points, observed sql.NullInt64
		if err := rows.Scan(&relCountry, &relCommodity, &points, &observed); err != nil {
			return nil, err
		}
		out = append(out, relatedSeriesItem{
			Country:    relCountry.String,
			Commodity:  relCommodity.String,
			Points:     int(points.Int64),
			Observed:   int(observed.Int64),
			SeriesPath: seriesPath(relCountry.String, relCommodity.String),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type datasetStats struct {
	Rows        int    `json:"rows"`
	Observed    int    `json:"observed"`
	Series      int    `json:"series"`
	Countries   int    `json:"countries"`
	Commodities int    `json:"commodities"`
	Products    int    `json:"products"`
	FirstYear   *int64 `json:"first_year"`
	LastYear    *int64 `json:"last_year"`
}

type homePayload struct {
	GeneratedAt string        `json:"generated_at"`
	Table       string        `json:"table"`
	Unit        string        `json:"unit"`
	Stats       datasetStats  `json:"stats"`
	Sections    []homeSection `json:"sections"`
}

type homeSection struct {
	ID          string           `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Items       []map[string]any `json:"items"`
}

type searchPayload struct {
	Query          string           `json:"query"`
	MinQueryLength int              `json:"min_query_length"`
	Page           int              `json:"page"`
	MinPage        int              `json:"min_page"`
	MaxPage        int              `json:"max_page"`
	PerPage        int              `json:"per_page"`
	Offset         int              `json:"offset"`
	Total          int              `json:"total"`
	TotalPages     int              `json:"total_pages"`
	Returned       int              `json:"returned"`
	SearchFields   []string         `json:"search_fields"`
	Items          []map[string]any `json:"items"`
}

func fetchHomePayload(db *sql.DB, table, unit string) (homePayload, error) {
	stats, err := fetchDatasetStats(db, table, unit)
	if err != nil {
		return homePayload{}, err
	}

	sections := []homeSection{}
	queries := []struct {
		id, title, desc, group string
	}{
		{
			id:    "top-countries",
			title: "Leading Reporters",
			desc:  "Countries with the most observed values in this dataset.",
			group: "country",
		},
		{
			id:    "top-commodities",
			title: "Most Reported Commodities",
			desc:  "Commodity lines with the broadest reporting coverage.",
			group: "commodity",
		},
		{
			id:    "top-products",
			title: "Product Groups",
			desc:  "Aggregated product groups behind the commodity lines.",
			group: "product",
		},
	}

	for _, q := range queries {
		items, err := fetchGroupLeaders(db, table, unit, q.group, homeSectionSize)
		if err != nil {
			return homePayload{}, err
		}
		if len(items) == 0 {
			continue
		}
		sections = append(sections, homeSection{
			ID:          q.id,
			Title:       q.title,
			Description: q.desc,
			Items:       items,
		})
	}

	return homePayload{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Table:       table,
		Unit:        unit,
		Stats:       stats,
		Sections:    sections,
	}, nil
}

func fetchDatasetStats(db *sql.DB, table, unit string) (datasetStats, error) {
	q := fmt.Sprintf(
		`SELECT COUNT(*), COUNT(%s),
		        COUNT(DISTINCT country), COUNT(DISTINCT commodity), COUNT(DISTINCT product),
		        MIN(year), MAX(year)
		 FROM %s`,
		quoteIdent(unit), quoteIdent(table),
	)
	var stats datasetStats
	var minYear, maxYear sql.NullInt64
	if err := db.QueryRow(q).Scan(
		&stats.Rows, &stats.Observed,
		&stats.Countries, &stats.Commodities, &stats.Products,
		&minYear, &maxYear,
	); err != nil {
		return datasetStats{}, err
	}
	if minYear.Valid {
		y := minYear.Int64
		stats.FirstYear = &y
	}
	if maxYear.Valid {
		y := maxYear.Int64
		stats.LastYear = &y
	}
	series, err := countSeries(db, table)
	if err != nil {
		return datasetStats{}, err
	}
	stats.Series = series
	return stats, nil
}

func fetchGroupLeaders(db *sql.DB, table, unit, group string, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = homeSectionSize
	}
	groupQ := quoteIdent(group)
	unitQ := quoteIdent(unit)
	q := fmt.Sprintf(
		`SELECT %s, COUNT(*) AS points, COUNT(%s) AS observed, SUM(%s) AS total
		 FROM %s
		 WHERE %s IS NOT NULL AND TRIM(CAST(%s AS TEXT)) != ''
		 GROUP BY %s
		 ORDER BY observed DESC, points DESC, %s ASC
		 LIMIT %d`,
		groupQ, unitQ, unitQ, quoteIdent(table), groupQ, groupQ, groupQ, groupQ, limit,
	)
	rows, err := db.Query(q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var label sql.NullString
		var points, observed sql.NullInt64
		var total sql.NullFloat64
		if err := rows.Scan(&label, &points, &observed, &total); err != nil {
			return nil, err
		}
		item := map[string]any{
			"label":       label.String,
			"points":      points.Int64,
			"observed":    observed.Int64,
			"search_path": "/search?" + url.Values{"q": []string{label.String}}.Encode(),
		}
		if total.Valid {
			item["total"] = total.Float64
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func fetchSearchPayload(db *sql.DB, table, unit, query string, page, perPage, offset int) (searchPayload, error) {
	searchFields := []string{"country", "commodity", "product"}

	pattern := "%" + escapeLikePattern(query) + "%"
	whereParts := make([]string, 0, len(searchFields))
	whereArgs := make([]any, 0, len(searchFields))
	for _, f := range searchFields {
		whereParts = append(whereParts, fmt.Sprintf("%s LIKE ? ESCAPE '\\'", quoteIdent(f)))
		whereArgs = append(whereArgs, pattern)
	}
	whereClause := strings.Join(whereParts, " OR ")
	tableQ := quoteIdent(table)

	countQ := fmt.Sprintf(
		"SELECT COUNT(*) FROM (SELECT DISTINCT country, commodity FROM %s WHERE (%s))",
		tableQ, whereClause,
	)
	var total int
	if err := db.QueryRow(countQ, whereArgs...).Scan(&total); err != nil {
		return searchPayload{}, err
	}

	items, err := fetchSearchItems(db, table, unit, searchFields, perPage, offset, whereClause, whereArgs...)
	if err != nil {
		return searchPayload{}, err
	}
	totalPages := 0
	if total > 0 {
		totalPages = (total + perPage - 1) / perPage
	}

	return searchPayload{
		Query:          query,
		MinQueryLength: searchMinChars,
		Page:           page,
		MinPage:        1,
		MaxPage:        totalPages,
		PerPage:        perPage,
		Offset:         offset,
		Total:          total,
		TotalPages:     totalPages,
		Returned:       len(items),
		SearchFields:   searchFields,
		Items:          items,
	}, nil
}

func fetchSearchItems(db *sql.DB, table, unit string, searchFields []string, limit, offset int, whereClause string, whereArgs ...any) ([]map[string]any, error) {
	tableQ := quoteIdent(table)
	unitQ := quoteIdent(unit)
	orderClauses := make([]string, 0, len(searchFields)+3)
	for _, f := range searchFields {
		fq := quoteIdent(f)
		orderClauses = append(orderClauses, fmt.Sprintf("CASE WHEN %s LIKE ? ESCAPE '\\' THEN 0 ELSE 1 END", fq))
	}
	orderClauses = append(orderClauses, "observed DESC", "country ASC", "commodity ASC")
	orderClause := strings.Join(orderClauses, ", ")

	args := make([]any, 0, len(whereArgs)+len(searchFields)+2)
	args = append(args, whereArgs...)
	// Use q% ranking pattern derived from the substring pattern input.
	if len(whereArgs) > 0 {
		if substrPattern, ok := whereArgs[0].(string); ok {
			prefix := prefixLikePatternFromSubstringPattern(substrPattern)
			for range searchFields {
				args = append(args, prefix)
			}
		}
	}
	args = append(args, limit, offset)

	q := fmt.Sprintf(
		`SELECT country, commodity, MAX(product) AS product, COUNT(*) AS points, COUNT(%s) AS observed
		 FROM %s
		 WHERE (%s)
		 GROUP BY country, commodity
		 ORDER BY %s
		 LIMIT ? OFFSET ?`,
		unitQ, tableQ, whereClause, orderClause,
	)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var country, commodity, product sql.NullString
		var points, observed sql.NullInt64
		if err := rows.Scan(&country, &commodity, &product, &points, &observed); err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"country":     country.String,
			"commodity":   commodity.String,
			"product":     product.String,
			"points":      points.Int64,
			"observed":    observed.Int64,
			"series_path": seriesPath(country.String, commodity.String),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func escapeLikePattern(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}

func prefixLikePatternFromSubstringPattern(substrPattern string) string {
	trimmed := strings.TrimPrefix(strings.TrimSuffix(substrPattern, "%"), "%")
	return trimmed + "%"
}

func parsePageQueryParam(r *http.Request, key string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, true
	}
	n64, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n64 < 1 {
		return 0, false
	}
	if n64 > maxIntValue() {
		return 0, false
	}
	return int(n64), true
}

func pageOffset(page, perPage int) (int, bool) {
	if page < 1 || perPage < 1 {
		return 0, false
	}
	p := int64(page - 1)
	sz := int64(perPage)
	if p > maxIntValue()/sz {
		return 0, false
	}
	return int(p * sz), true
}

func maxIntValue() int64 {
	return int64(^uint(0) >> 1)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

var homePageTemplate = template.Must(template.New("home").Parse(`<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{ .title }}</title>
  <style>
    :root {
      --bg: #eef4f5;
      --ink: #0c1f26;
      --muted: #5b7078;
      --line: rgba(12, 31, 38, 0.14);
      --card: rgba(255,255,255,0.92);
      --brand: #0e7490;
      --brand-2: #b45309;
      --shadow: 0 18px 40px rgba(12, 31, 38, 0.10);
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      color: var(--ink);
      font-family: "Georgia", "Times New Roman", serif;
      background:
        radial-gradient(900px 480px at 10% -5%, rgba(14, 116, 144, 0.14), transparent 60%),
        radial-gradient(800px 460px at 95% 0%, rgba(180, 83, 9, 0.10), transparent 60%),
        linear-gradient(180deg, #f2f7f8 0%, #eef4f5 45%, #e9f0f1 100%);
    }
    a { color: inherit; }
    .shell { max-width: 1180px; margin: 0 auto; padding: 20px 20px 56px; }
    .topbar {
      display: flex;
      align-items: center;
      justify-content: space-between;
      gap: 12px;
      flex-wrap: wrap;
      padding: 10px 14px;
      border: 1px solid var(--line);
      background: rgba(255,255,255,0.7);
      border-radius: 999px;
      backdrop-filter: blur(6px);
      position: sticky;
      top: 10px;
      z-index: 10;
    }
    .logo {
      font-size: 14px;
      letter-spacing: 0.16em;
      text-transform: uppercase;
      font-weight: 700;
      color: var(--brand);
      text-decoration: none;
    }
    .search-form {
      display: flex;
      align-items: center;
      gap: 8px;
      flex: 1 1 360px;
      min-width: 240px;
      max-width: 560px;
      margin: 0 8px;
    }
    .search-input {
      flex: 1;
      min-width: 0;
      border: 1px solid var(--line);
      background: rgba(255,255,255,0.92);
      border-radius: 999px;
      padding: 10px 14px;
      font-size: 14px;
      color: var(--ink);
      outline: none;
    }
    .search-input:focus {
      border-color: rgba(14, 116, 144, 0.4);
      box-shadow: 0 0 0 3px rgba(14, 116, 144, 0.12);
    }
    .search-submit {
      border: 1px solid rgba(14, 116, 144, 0.20);
      background: var(--brand);
      color: #fff;
      border-radius: 999px;
      padding: 10px 14px;
      font-size: 13px;
      cursor: pointer;
      white-space: nowrap;
    }
    .chip {
      display: inline-flex;
      align-items: center;
      padding: 8px 12px;
      border: 1px solid var(--line);
      border-radius: 999px;
      background: rgba(255,255,255,0.85);
      font-size: 13px;
      text-decoration: none;
      color: #1f3a44;
    }
    .hero {
      margin-top: 18px;
      border: 1px solid var(--line);
      border-radius: 22px;
      background:
        radial-gradient(circle at 15% 25%, rgba(207, 250, 254, 0.9), transparent 45%),
        radial-gradient(circle at 90% 20%, rgba(254, 243, 199, 0.7), transparent 50%),
        rgba(255,255,255,0.78);
      box-shadow: var(--shadow);
      overflow: hidden;
    }
    .hero-inner {
      display: grid;
      grid-template-columns: 1.25fr 0.9fr;
      gap: 18px;
      padding: 28px;
    }
    .eyebrow {
      font-size: 12px;
      text-transform: uppercase;
      letter-spacing: 0.18em;
      color: var(--brand);
      margin-bottom: 10px;
    }
    h1 {
      margin: 0 0 12px;
      font-size: clamp(30px, 4vw, 46px);
      line-height: 1.05;
      max-width: 18ch;
    }
    .hero-copy {
      font-size: 16px;
      line-height: 1.6;
      color: #32505a;
      max-width: 54ch;
      margin-bottom: 18px;
    }
    .hero-panel {
      border: 1px solid rgba(12, 31, 38, 0.08);
      border-radius: 18px;
      background: rgba(255,255,255,0.86);
      padding: 14px;
      align-self: stretch;
    }
    .hero-panel h2 { margin: 2px 4px 10px; font-size: 17px; }
    .stat-grid {
      display: grid;
      grid-template-columns: repeat(2, minmax(0, 1fr));
      gap: 8px;
    }
    .stat-card {
      border: 1px solid rgba(12, 31, 38, 0.08);
      border-radius: 12px;
      background: #fff;
      padding: 10px 12px;
    }
    .stat-card b { display: block; font-size: 18px; }
    .stat-card span { display: block; font-size: 12px; color: var(--muted); margin-top: 2px; }
    .status { margin-top: 12px; font-size: 14px; color: var(--brand-2); }
    .sections { margin-top: 26px; display: grid; gap: 22px; }
    .section {
      border: 1px solid var(--line);
      border-radius: 18px;
      background: var(--card);
      box-shadow: var(--shadow);
      padding: 20px;
    }
    .section-head {
      display: flex;
      align-items: baseline;
      justify-content: space-between;
      gap: 12px;
      flex-wrap: wrap;
      margin-bottom: 12px;
    }
    .section-title { margin: 0; font-size: 20px; }
    .section-desc { margin: 4px 0 0; color: var(--muted); font-size: 14px; }
    .section-meta { color: var(--muted); font-size: 13px; }
    .cards {
      display: grid;
      grid-template-columns: repeat(5, minmax(0, 1fr));
      gap: 10px;
    }
    .card {
      display: block;
      text-decoration: none;
      color: inherit;
      background: #fff;
      border: 1px solid var(--line);
      border-radius: 14px;
      padding: 12px;
      transition: transform 120ms ease, box-shadow 120ms ease;
    }
    .card:hover { transform: translateY(-2px); box-shadow: 0 10px 18px rgba(12, 31, 38, 0.08); }
    .card-name {
      font-size: 14px;
      line-height: 1.35;
      margin-bottom: 8px;
      display: -webkit-box;
      -webkit-line-clamp: 2;
      -webkit-box-orient: vertical;
      overflow: hidden;
      min-height: 38px;
    }
    .card-meta { font-size: 12px; color: var(--muted); }
    .card-total { margin-top: 6px; font-size: 13px; font-weight: 700; color: var(--brand); }
    .footer-note { margin-top: 30px; text-align: center; color: var(--muted); font-size: 13px; }
    @media (max-width: 900px) {
      .hero-inner { grid-template-columns: 1fr; }
      .cards { grid-template-columns: repeat(2, minmax(0, 1fr)); }
    }
    @media (max-width: 560px) {
      .cards { grid-template-columns: 1fr; }
      .topbar { border-radius: 18px; }
    }
  </style>
</head>
<body>
  <div class="shell">
    <div class="topbar">
      <a class="logo" href="/">faotidy</a>
      <form class="search-form" action="/search" method="get" role="search">
        <input class="search-input" type="search" name="q" minlength="3" required placeholder="Search countries, commodities, product groups" />
        <button class="search-submit" type="submit">Search</button>
      </form>
      <div class="top-actions">
        <a class="chip" href="/sitemap.xml">Sitemap</a>
        <a class="chip" href="/health">Health</a>
      </div>
    </div>

    <section class="hero">
      <div class="hero-inner">
        <div>
          <div class="eyebrow">Fisheries commodity trade</div>
          <h1>Cleaned export and import series, year by year</h1>
          <div class="hero-copy">
            Browse the cleaned commodity dataset: one series per country and
            commodity line, joined to its product group, with estimate flags
            and sentinel codes already resolved.
          </div>
          <div class="status" id="home-status" hidden></div>
        </div>
        <aside class="hero-panel">
          <h2>Dataset at a glance</h2>
          <div class="stat-grid">
            <div class="stat-card"><b id="stat-rows">...</b><span>Cleaned rows</span></div>
            <div class="stat-card"><b id="stat-series">...</b><span>Series</span></div>
            <div class="stat-card"><b id="stat-countries">...</b><span>Countries</span></div>
            <div class="stat-card"><b id="stat-commodities">...</b><span>Commodities</span></div>
            <div class="stat-card"><b id="stat-products">...</b><span>Product groups</span></div>
            <div class="stat-card"><b id="stat-years">...</b><span>Year span</span></div>
          </div>
        </aside>
      </div>
    </section>

    <main class="sections" id="sections" aria-live="polite"></main>
    <div class="footer-note" id="footer-note">Cleaned FAO fisheries commodity series served straight from sqlite.</div>
  </div>

  <script>
    (function () {
      var statusEl = document.getElementById("home-status");
      var sectionsEl = document.getElementById("sections");
      var footerEl = document.getElementById("footer-note");

      function escapeHtml(s) {
        return String(s == null ? "" : s).replace(/[&<>\"']/g, function (ch) {
          return ({ "&": "&amp;", "<": "&lt;", ">": "&gt;", "\"": "&quot;", "'": "&#39;" })[ch];
        });
      }

      function fmtCount(n) {
        if (typeof n !== "number" || !Number.isFinite(n)) return "0";
        return new Intl.NumberFormat("en-US").format(n);
      }

      function fmtTotal(n) {
        if (typeof n !== "number" || !Number.isFinite(n)) return "";
        return new Intl.NumberFormat("en-US", { maximumFractionDigits: 1 }).format(n);
      }

      function setStat(id, text) {
        var el = document.getElementById(id);
        if (el) el.textContent = text;
      }

      function renderCard(item, unit) {
        var href = escapeHtml(item.search_path || "#");
        var totalLine = "";
        if (typeof item.total === "number") {
          totalLine = '<div class="card-total">' + escapeHtml(fmtTotal(item.total) + " " + unit) + '</div>';
        }
        return '' +
          '<a class="card" href="' + href + '">' +
            '<div class="card-name">' + escapeHtml(item.label || "") + '</div>' +
            '<div class="card-meta">' + fmtCount(item.observed) + ' observed of ' + fmtCount(item.points) + ' points</div>' +
            totalLine +
          '</a>';
      }

      function renderSection(section, unit) {
        var title = escapeHtml(section.title || "Collection");
        var desc = escapeHtml(section.description || "");
        var id = escapeHtml(section.id || "");
        var items = Array.isArray(section.items) ? section.items : [];
        return '' +
          '<section class="section" data-section-id="' + id + '">' +
            '<div class="section-head">' +
              '<div>' +
                '<h2 class="section-title">' + title + '</h2>' +
                (desc ? '<p class="section-desc">' + desc + '</p>' : '') +
              '</div>' +
              '<div class="section-meta">' + items.length + ' entries</div>' +
            '</div>' +
            '<div class="cards">' + items.map(function (it) { return renderCard(it, unit); }).join("") + '</div>' +
          '</section>';
      }

      try {
        var data = {{ .home_data_json }};
        var stats = data.stats || {};
        var unit = data.unit || "";
        setStat("stat-rows", fmtCount(stats.rows));
        setStat("stat-series", fmtCount(stats.series));
        setStat("stat-countries", fmtCount(stats.countries));
        setStat("stat-commodities", fmtCount(stats.commodities));
        setStat("stat-products", fmtCount(stats.products));
        if (typeof stats.first_year === "number" && typeof stats.last_year === "number") {
          setStat("stat-years", stats.first_year + " to " + stats.last_year);
        } else {
          setStat("stat-years", "n/a");
        }
        if (footerEl && data.table) {
          footerEl.textContent = "Table " + data.table + " (" + unit + "), served straight from sqlite.";
        }
        var sections = Array.isArray(data.sections) ? data.sections : [];
        if (sections.length === 0) {
          statusEl.hidden = false;
          statusEl.textContent = "No data available in this table yet.";
          return;
        }
        sectionsEl.innerHTML = sections.map(function (s) { return renderSection(s, unit); }).join("");
        statusEl.hidden = true;
      } catch (_) {
        statusEl.hidden = false;
        statusEl.textContent = "Could not load dataset overview right now.";
      }
    })();
  </script>
</body>
</html>`))

var seriesPageTemplate = template.Must(template.New("series").Parse(`<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{ .title }}</title>
  <style>
    :root {
      --bg: #eef4f5;
      --card: #ffffff;
      --ink: #0c1f26;
      --muted: #5b7078;
      --accent: #0e7490;
      --accent-2: #b45309;
      --border: #d7e2e5;
      --shadow: 0 12px 30px rgba(12, 31, 38, 0.10);
    }
    body {
      margin: 0;
      background: radial-gradient(circle at 15% 20%, #cffafe, transparent 40%),
                  radial-gradient(circle at 85% 10%, #fef3c7, transparent 45%),
                  var(--bg);
      color: var(--ink);
      font-family: "Georgia", "Times New Roman", serif;
    }
    .page-shell { max-width: 1180px; margin: 0 auto; padding: 20px 20px 0; }
    .topbar {
      display: flex;
      align-items: center;
      justify-content: space-between;
      gap: 12px;
      flex-wrap: wrap;
      padding: 10px 14px;
      border: 1px solid rgba(12, 31, 38, 0.12);
      background: rgba(255,255,255,0.72);
      border-radius: 999px;
      backdrop-filter: blur(6px);
      position: sticky;
      top: 10px;
      z-index: 10;
    }
    .logo {
      font-size: 14px;
      letter-spacing: 0.16em;
      text-transform: uppercase;
      font-weight: 700;
      color: var(--accent);
      text-decoration: none;
    }
    .search-form { display: flex; align-items: center; gap: 8px; flex: 1 1 420px; min-width: 240px; max-width: 680px; margin: 0 8px; }
    .search-input {
      flex: 1;
      min-width: 0;
      border: 1px solid rgba(12, 31, 38, 0.12);
      background: rgba(255,255,255,0.95);
      border-radius: 999px;
      padding: 10px 14px;
      font-size: 14px;
      outline: none;
      color: var(--ink);
    }
    .search-submit {
      border: 1px solid rgba(14, 116, 144, 0.20);
      background: var(--accent);
      color: #fff;
      border-radius: 999px;
      padding: 10px 14px;
      font-size: 13px;
      cursor: pointer;
      white-space: nowrap;
    }
    .wrap { max-width: 1040px; margin: 36px auto 64px; padding: 0 20px; }
    .crumbs { font-size: 14px; color: var(--muted); margin-bottom: 14px; }
    .crumbs a { color: var(--accent); text-decoration: none; }
    .card {
      background: var(--card);
      border: 1px solid var(--border);
      border-radius: 18px;
      padding: 26px;
      box-shadow: var(--shadow);
    }
    .kicker { font-size: 12px; letter-spacing: 0.18em; text-transform: uppercase; color: var(--accent); margin-bottom: 8px; }
    h1 { font-size: clamp(24px, 3.2vw, 34px); margin: 0 0 12px; line-height: 1.2; word-break: break-word; }
    .meta { color: var(--muted); font-size: 14px; margin-bottom: 16px; }
    .meta span { display: inline-block; margin-right: 14px; }
    .pill { font-size: 12px; color: var(--accent-2); border: 1px solid #fde68a; background: #fffbeb; padding: 4px 10px; border-radius: 999px; }
    .summary-row { display: flex; align-items: center; gap: 12px; flex-wrap: wrap; margin: 14px 0; }
    .summary-big { font-size: 24px; font-weight: 700; }
    .table-wrap { overflow: auto; border: 1px solid rgba(12,31,38,0.08); border-radius: 12px; background: #fff; margin-top: 14px; }
    table.series { width: 100%; border-collapse: collapse; font-size: 14px; }
    table.series th, table.series td { padding: 10px 12px; text-align: left; border-bottom: 1px solid rgba(12,31,38,0.06); }
    table.series th { color: var(--muted); font-weight: 600; background: #f8fbfc; }
    table.series td.num { text-align: right; font-variant-numeric: tabular-nums; }
    table.series tr:last-child td { border-bottom: 0; }
    td.missing { color: var(--muted); font-style: italic; }
    .recs {
      margin-top: 26px;
      background: rgba(255,255,255,0.72);
      border: 1px solid var(--border);
      border-radius: 18px;
      padding: 20px;
      backdrop-filter: blur(4px);
    }
    .recs h2 { margin: 0 0 6px; font-size: 20px; }
    .recs-sub { color: var(--muted); font-size: 14px; margin-bottom: 14px; }
    .recs-grid { display: grid; grid-template-columns: repeat(4, minmax(0, 1fr)); gap: 12px; }
    .rec-card {
      display: block;
      text-decoration: none;
      color: inherit;
      background: #fff;
      border: 1px solid var(--border);
      border-radius: 14px;
      padding: 14px;
      min-height: 96px;
      box-shadow: 0 8px 18px rgba(12, 31, 38, 0.05);
      transition: transform 120ms ease, box-shadow 120ms ease;
    }
    .rec-card:hover { transform: translateY(-2px); box-shadow: 0 12px 20px rgba(12, 31, 38, 0.08); }
    .rec-country { font-size: 11px; letter-spacing: 0.14em; text-transform: uppercase; color: var(--accent); margin-bottom: 6px; }
    .rec-commodity { font-size: 14px; line-height: 1.35; margin-bottom: 8px; min-height: 38px; }
    .rec-meta { font-size: 12px; color: var(--muted); }
    .recs-status { color: var(--muted); font-size: 14px; }
    @media (max-width: 900px) { .recs-grid { grid-template-columns: repeat(2, minmax(0, 1fr)); } }
    @media (max-width: 560px) { .recs-grid { grid-template-columns: 1fr; } }
  </style>
</head>
<body>
  <div class="page-shell">
    <div class="topbar">
      <a class="logo" href="/">faotidy</a>
      <form class="search-form" action="/search" method="get" role="search">
        <input class="search-input" type="search" name="q" minlength="3" required placeholder="Search countries, commodities, product groups" />
        <button class="search-submit" type="submit">Search</button>
      </form>
    </div>
  </div>
  <div class="wrap">
    <div class="crumbs"><a href="/">Overview</a> / <span id="series-crumb">Series</span></div>
    <div class="card">
      <div class="kicker" id="series-product">Loading product group...</div>
      <h1 id="series-title">Loading series...</h1>
      <div class="meta">
        <span>Country: <span id="series-country"></span></span>
        <span>Commodity: <span id="series-commodity"></span></span>
        <span class="pill" id="series-unit"></span>
      </div>
      <div class="summary-row">
        <div class="summary-big" id="series-total"></div>
        <div id="series-observed" class="meta"></div>
      </div>
      <div class="table-wrap">
        <table class="series">
          <thead>
            <tr><th>Year</th><th id="value-head">Value</th></tr>
          </thead>
          <tbody id="series-body"></tbody>
        </table>
      </div>
    </div>
    <section class="recs" id="related-series">
      <h2>Related series</h2>
      <div class="recs-sub">Other country series in the same product group.</div>
      <div class="recs-status" id="related-status">Loading related series...</div>
      <div class="recs-grid" id="related-grid" hidden></div>
    </section>
  </div>
  <script>
    (function () {
      var crumbEl = document.getElementById("series-crumb");
      var productEl = document.getElementById("series-product");
      var titleEl = document.getElementById("series-title");
      var countryEl = document.getElementById("series-country");
      var commodityEl = document.getElementById("series-commodity");
      var unitEl = document.getElementById("series-unit");
      var totalEl = document.getElementById("series-total");
      var observedEl = document.getElementById("series-observed");
      var valueHeadEl = document.getElementById("value-head");
      var bodyEl = document.getElementById("series-body");
      var relStatusEl = document.getElementById("related-status");
      var relGridEl = document.getElementById("related-grid");

      function escapeHtml(s) {
        return String(s == null ? "" : s).replace(/[&<>\"']/g, function (ch) {
          return ({ "&": "&amp;", "<": "&lt;", ">": "&gt;", "\"": "&quot;", "'": "&#39;" })[ch];
        });
      }

      function fmtValue(n) {
        if (typeof n !== "number" || !Number.isFinite(n)) return null;
        return new Intl.NumberFormat("en-US", { maximumFractionDigits: 2 }).format(n);
      }

      function renderPoint(pt) {
        var year = (typeof pt.year === "number") ? String(pt.year) : "n/a";
        var value = fmtValue(pt.value);
        var valueCell = value === null
          ? '<td class="num missing">missing</td>'
          : '<td class="num">' + escapeHtml(value) + '</td>';
        return '<tr><td>' + escapeHtml(year) + '</td>' + valueCell + '</tr>';
      }

      function renderRelated(item) {
        var href = escapeHtml(item.series_path || "#");
        return '' +
          '<a class="rec-card" href="' + href + '">' +
            '<div class="rec-country">' + escapeHtml(item.country || "") + '</div>' +
            '<div class="rec-commodity">' + escapeHtml(item.commodity || "") + '</div>' +
            '<div class="rec-meta">' + (item.observed || 0) + ' observed of ' + (item.points || 0) + ' points</div>' +
          '</a>';
      }

      try {
        var data = {{ .series_data_json }};
        var label = (data.country || "") + " / " + (data.commodity || "");
        if (crumbEl) crumbEl.textContent = label;
        if (titleEl) titleEl.textContent = label;
        if (productEl) productEl.textContent = data.product ? ("Product group: " + data.product) : "No product group";
        if (countryEl) countryEl.textContent = data.country || "";
        if (commodityEl) commodityEl.textContent = data.commodity || "";
        if (unitEl) unitEl.textContent = data.unit || "";
        if (valueHeadEl && data.unit) valueHeadEl.textContent = "Value (" + data.unit + ")";
        var points = Array.isArray(data.points) ? data.points : [];
        if (bodyEl) bodyEl.innerHTML = points.map(renderPoint).join("");
        var total = fmtValue(data.total);
        if (totalEl) totalEl.textContent = total === null ? "No observed values" : (total + " " + (data.unit || ""));
        if (observedEl) observedEl.textContent = (data.observed || 0) + " observed of " + points.length + " points";

        var related = Array.isArray(data.related) ? data.related : [];
        if (related.length === 0) {
          relStatusEl.textContent = "No other series share this product group.";
        } else {
          relGridEl.innerHTML = related.map(renderRelated).join("");
          relGridEl.hidden = false;
          relStatusEl.hidden = true;
        }
      } catch (_) {
        if (relStatusEl) relStatusEl.textContent = "Could not load this series right now.";
      }
    })();
  </script>
</body>
</html>`))

var searchPageTemplate = template.Must(template.New("search").Parse(`<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{ .title }}</title>
  <style>
    :root {
      --bg: #eef4f5;
      --ink: #0c1f26;
      --muted: #5b7078;
      --line: rgba(12, 31, 38, 0.12);
      --card: rgba(255,255,255,0.95);
      --brand: #0e7490;
      --brand-2: #b45309;
      --shadow: 0 14px 34px rgba(12, 31, 38, 0.10);
    }
    * { box-sizing: border-box; }
    body {
      margin: 0;
      color: var(--ink);
      font-family: "Georgia", "Times New Roman", serif;
      background:
        radial-gradient(800px 420px at 10% -5%, rgba(14, 116, 144, 0.12), transparent 60%),
        linear-gradient(180deg, #f2f7f8 0%, #eef4f5 50%, #e9f0f1 100%);
    }
    .shell { max-width: 980px; margin: 0 auto; padding: 20px 20px 64px; }
    .topbar {
      display: flex;
      align-items: center;
      justify-content: space-between;
      gap: 12px;
      flex-wrap: wrap;
      padding: 10px 14px;
      border: 1px solid var(--line);
      background: rgba(255,255,255,0.72);
      border-radius: 999px;
      backdrop-filter: blur(6px);
      position: sticky;
      top: 10px;
      z-index: 10;
    }
    .logo {
      font-size: 14px;
      letter-spacing: 0.16em;
      text-transform: uppercase;
      font-weight: 700;
      color: var(--brand);
      text-decoration: none;
    }
    .search-form { display: flex; align-items: center; gap: 8px; flex: 1 1 420px; min-width: 240px; max-width: 680px; margin: 0 8px; }
    .search-input {
      flex: 1;
      min-width: 0;
      border: 1px solid var(--line);
      background: rgba(255,255,255,0.95);
      border-radius: 999px;
      padding: 10px 14px;
      font-size: 14px;
      outline: none;
      color: var(--ink);
    }
    .search-submit {
      border: 1px solid rgba(14, 116, 144, 0.20);
      background: var(--brand);
      color: #fff;
      border-radius: 999px;
      padding: 10px 14px;
      font-size: 13px;
      cursor: pointer;
      white-space: nowrap;
    }
    .head { margin: 26px 4px 14px; }
    .head h1 { margin: 0 0 6px; font-size: clamp(24px, 3.4vw, 32px); }
    .head .sub { color: var(--muted); font-size: 14px; }
    .error { margin: 14px 4px; color: #b91c1c; font-size: 14px; }
    .results { display: grid; gap: 10px; }
    .result {
      display: block;
      text-decoration: none;
      color: inherit;
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 14px;
      padding: 14px 16px;
      box-shadow: 0 8px 18px rgba(12, 31, 38, 0.05);
      transition: transform 120ms ease, box-shadow 120ms ease;
    }
    .result:hover { transform: translateY(-1px); box-shadow: var(--shadow); }
    .result-top { display: flex; align-items: baseline; justify-content: space-between; gap: 10px; flex-wrap: wrap; }
    .result-title { font-size: 16px; }
    .result-product { font-size: 12px; color: var(--brand); text-transform: uppercase; letter-spacing: 0.12em; }
    .result-meta { margin-top: 6px; font-size: 13px; color: var(--muted); }
    .pager { display: flex; align-items: center; justify-content: space-between; gap: 10px; margin-top: 18px; }
    .pager a, .pager span.page-label { font-size: 14px; }
    .pager a {
      color: var(--brand);
      text-decoration: none;
      border: 1px solid rgba(14, 116, 144, 0.25);
      border-radius: 999px;
      padding: 8px 14px;
      background: rgba(255,255,255,0.85);
    }
    .pager .page-label { color: var(--muted); }
    .status { margin: 20px 4px; color: var(--muted); font-size: 15px; }
  </style>
</head>
<body>
  <div class="shell">
    <div class="topbar">
      <a class="logo" href="/">faotidy</a>
      <form class="search-form" action="/search" method="get" role="search">
        <input class="search-input" type="search" name="q" minlength="3" required placeholder="Search countries, commodities, product groups" id="search-box" />
        <button class="search-submit" type="submit">Search</button>
      </form>
    </div>

    <div class="head">
      <h1>Series search</h1>
      <div class="sub" id="search-sub">Find series by country, commodity line, or product group.</div>
    </div>
    {{ if .search_error }}<div class="error">{{ .search_error }}</div>{{ end }}
    <div class="status" id="search-status" hidden></div>
    <div class="results" id="search-results"></div>
    <div class="pager" id="search-pager" hidden>
      <span id="pager-prev"></span>
      <span class="page-label" id="pager-label"></span>
      <span id="pager-next"></span>
    </div>
  </div>

  <script>
    (function () {
      var subEl = document.getElementById("search-sub");
      var statusEl = document.getElementById("search-status");
      var resultsEl = document.getElementById("search-results");
      var pagerEl = document.getElementById("search-pager");
      var prevEl = document.getElementById("pager-prev");
      var nextEl = document.getElementById("pager-next");
      var labelEl = document.getElementById("pager-label");
      var boxEl = document.getElementById("search-box");

      function escapeHtml(s) {
        return String(s == null ? "" : s).replace(/[&<>\"']/g, function (ch) {
          return ({ "&": "&amp;", "<": "&lt;", ">": "&gt;", "\"": "&quot;", "'": "&#39;" })[ch];
        });
      }

      function pageHref(query, page) {
        return "/search?q=" + encodeURIComponent(query) + "&page=" + page;
      }

      function renderResult(item) {
        var href = escapeHtml(item.series_path || "#");
        var title = escapeHtml((item.country || "") + " / " + (item.commodity || ""));
        var product = escapeHtml(item.product || "");
        return '' +
          '<a class="result" href="' + href + '">' +
            '<div class="result-top">' +
              '<span class="result-title">' + title + '</span>' +
              (product ? '<span class="result-product">' + product + '</span>' : '') +
            '</div>' +
            '<div class="result-meta">' + (item.observed || 0) + ' observed of ' + (item.points || 0) + ' points</div>' +
          '</a>';
      }

      try {
        var data = {{ .search_data_json }};
        if (!data) {
          statusEl.hidden = false;
          statusEl.textContent = "Type at least 3 characters to search the cleaned series.";
          return;
        }
        if (boxEl && data.query) boxEl.value = data.query;
        if (subEl) {
          subEl.textContent = data.total + " series match \"" + data.query + "\" across " +
            (Array.isArray(data.search_fields) ? data.search_fields.join(", ") : "") + ".";
        }
        var items = Array.isArray(data.items) ? data.items : [];
        if (items.length === 0) {
          statusEl.hidden = false;
          statusEl.textContent = "No series match this query.";
          return;
        }
        resultsEl.innerHTML = items.map(renderResult).join("");
        if (data.total_pages > 1) {
          pagerEl.hidden = false;
          labelEl.textContent = "Page " + data.page + " of " + data.total_pages;
          if (data.page > 1) {
            prevEl.innerHTML = '<a href="' + escapeHtml(pageHref(data.query, data.page - 1)) + '">Previous</a>';
          }
          if (data.page < data.total_pages) {
            nextEl.innerHTML = '<a href="' + escapeHtml(pageHref(data.query, data.page + 1)) + '">Next</a>';
          }
        }
      } catch (_) {
        statusEl.hidden = false;
        statusEl.textContent = "Could not load search results right now.";
      }
    })();
  </script>
</body>
</html>`))
