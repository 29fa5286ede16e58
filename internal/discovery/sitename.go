package discovery

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/venue-crawler/internal/crawler"
)

// SiteName derives a display name from og:site_name, then <title>, then the
// hostname without a leading "www.".
func SiteName(pageHTML, pageURL string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err == nil {
		if name, ok := doc.Find(`meta[property="og:site_name"]`).First().Attr("content"); ok {
			if name = strings.TrimSpace(name); name != "" {
				return name
			}
		}
		if title := strings.Join(strings.Fields(doc.Find("title").First().Text()), " "); title != "" {
			return title
		}
	}
	return strings.TrimPrefix(crawler.Hostname(pageURL), "www.")
}
