package analytics

import (
	"encoding/csv"
	"io"
	"sort"
	"strconv"
)

func csvHeader() []string {
	return []string{
		"date", "website_visits", "unique_visitors", "job_views", "job_clicks",
		"conversion_rate", "desktop", "mobile", "tablet",
		"chrome", "firefox", "safari", "edge", "other",
	}
}

func csvRow(r DailyReport) []string {
	var views, clicks int64
	for _, s := range r.JobViews {
		views += s.Count
	}
	for _, s := range r.JobClicks {
		clicks += s.Count
	}
	itoa := func(n int64) string { return strconv.FormatInt(n, 10) }
	return []string{
		r.Date.Format(dayLayout),
		itoa(r.WebsiteVisits),
		itoa(r.UniqueVisitors),
		itoa(views),
		itoa(clicks),
		strconv.FormatFloat(ConversionRate(clicks, views), 'f', 2, 64),
		itoa(r.DeviceInfo[DeviceDesktop]),
		itoa(r.DeviceInfo[DeviceMobile]),
		itoa(r.DeviceInfo[DeviceTablet]),
		itoa(r.BrowserInfo[BrowserChrome]),
		itoa(r.BrowserInfo[BrowserFirefox]),
		itoa(r.BrowserInfo[BrowserSafari]),
		itoa(r.BrowserInfo[BrowserEdge]),
		itoa(r.BrowserInfo[BrowserOther]),
	}
}

// WriteCSV writes one summary row per day followed, after a blank line, by
// one row per (day, job) with its views and clicks.
func WriteCSV(w io.Writer, reports []DailyReport) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader()); err != nil {
		return err
	}
	for _, r := range reports {
		if err := writer.Write(csvRow(r)); err != nil {
			return err
		}
	}

	if err := writer.Write(nil); err != nil {
		return err
	}
	if err := writer.Write([]string{"date", "job_id", "external_id", "company", "role", "views", "clicks"}); err != nil {
		return err
	}
	for _, r := range reports {
		for _, row := range jobRows(r) {
			if err := writer.Write(row); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

func jobRows(r DailyReport) [][]string {
	type pair struct {
		stat          JobStat
		views, clicks int64
	}
	byJob := make(map[string]*pair)
	for _, s := range r.JobViews {
		byJob[s.JobID] = &pair{stat: s, views: s.Count}
	}
	for _, s := range r.JobClicks {
		if p, ok := byJob[s.JobID]; ok {
			p.clicks = s.Count
			continue
		}
		byJob[s.JobID] = &pair{stat: s, clicks: s.Count}
	}

	ids := make([]string, 0, len(byJob))
	for id := range byJob {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		p := byJob[id]
		rows = append(rows, []string{
			r.Date.Format(dayLayout),
			id,
			p.stat.ExternalID,
			p.stat.Company,
			p.stat.Role,
			strconv.FormatInt(p.views, 10),
			strconv.FormatInt(p.clicks, 10),
		})
	}
	return rows
}
