// Package sitemap строит карту сайта в формате sitemaps.org.
package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"
)

const xmlns = "http://www.sitemaps.org/schemas/sitemap/0.9"

// Параметры групп: статические страницы, коммуны, выпуски журнала.
const (
	staticPriority  = "0.5"
	staticFreq      = "weekly"
	communePriority = "0.7"
	communeFreq     = "monthly"
	journalPriority = "0.6"
	journalFreq     = "monthly"
)

// URL — элемент <url> карты сайта.
type URL struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod,omitempty"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

type urlset struct {
	XMLName xml.Name `xml:"urlset"`
	Xmlns   string   `xml:"xmlns,attr"`
	URLs    []URL    `xml:"url"`
}

// JournalEntry — выпуск журнала для карты сайта.
type JournalEntry struct {
	ID          int64
	ReleaseDate time.Time
}

// Source отдаёт динамические части карты сайта.
type Source interface {
	CommuneSlugs(ctx context.Context) ([]string, error)
	JournalEntries(ctx context.Context) ([]JournalEntry, error)
}

// Build собирает список адресов: статические страницы, коммуны, журнал.
// base — абсолютный адрес сайта без завершающего слэша.
func Build(ctx context.Context, base string, src Source) ([]URL, error) {
	base = strings.TrimRight(base, "/")
	urls := make([]URL, 0, len(staticNames))
	for _, name := range staticNames {
		path, ok := Path(name)
		if !ok {
			return nil, fmt.Errorf("sitemap: unknown route %s", name)
		}
		urls = append(urls, URL{Loc: base + path, ChangeFreq: staticFreq, Priority: staticPriority})
	}

	slugs, err := src.CommuneSlugs(ctx)
	if err != nil {
		return nil, fmt.Errorf("sitemap communes: %w", err)
	}
	for _, s := range slugs {
		urls = append(urls, URL{Loc: base + CommunePath(s), ChangeFreq: communeFreq, Priority: communePriority})
	}

	journals, err := src.JournalEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("sitemap journals: %w", err)
	}
	for _, j := range journals {
		u := URL{Loc: base + JournalPath(j.ID), ChangeFreq: journalFreq, Priority: journalPriority}
		if !j.ReleaseDate.IsZero() {
			u.LastMod = j.ReleaseDate.Format("2006-01-02")
		}
		urls = append(urls, u)
	}
	return urls, nil
}

// Write сериализует адреса в XML-документ.
func Write(w io.Writer, urls []URL) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(urlset{Xmlns: xmlns, URLs: urls}); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
