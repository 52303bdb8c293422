package models

type Result struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Excerpt  string `json:"excerpt"`
	SiteName string `json:"site_name"`
	Text     string `json:"text"`
	Status   int    `json:"status"`
	RenderMS int    `json:"render_ms"`
}

// OK reports whether the page was reachable.
func (r Result) OK() bool { return r.Status >= 200 && r.Status < 400 }
