package devserver

import (
	"net/url"
	"strconv"

	"github.com/getmockd/pocketmock/pkg/requestlog"
)

// filterQuery encodes f as the query understood by the logs route.
func filterQuery(f *requestlog.Filter) string {
	if f == nil {
		return ""
	}
	q := url.Values{}
	if f.Method != "" {
		q.Set("method", f.Method)
	}
	if f.URL != "" {
		q.Set("url", f.URL)
	}
	if f.RuleID != "" {
		q.Set("ruleId", f.RuleID)
	}
	if f.Status != 0 {
		q.Set("status", strconv.Itoa(f.Status))
	}
	if f.IsMock != nil {
		q.Set("isMock", strconv.FormatBool(*f.IsMock))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	return q.Encode()
}
