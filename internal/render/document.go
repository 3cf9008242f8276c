package render

import (
	"bytes"
	"html/template"
	"net/url"
	"strings"

	"github.com/TobiSchelling/adcraft/internal/creative"
)

var documentTmpl = template.Must(template.New("ad").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
html, body { margin: 0; padding: 0; width: {{.Width}}px; height: {{.Height}}px; overflow: hidden; background: #111; }
.canvas { position: relative; width: {{.Width}}px; height: {{.Height}}px; font-family: "Helvetica Neue", Arial, sans-serif; }
.bg { position: absolute; inset: 0; width: 100%; height: 100%; object-fit: cover; }
.shade { position: absolute; left: 0; right: 0; bottom: 0; height: 65%; background: linear-gradient(to bottom, rgba(0,0,0,0) 0%, rgba(0,0,0,0.75) 100%); }
.stack { position: absolute; left: 6%; right: 6%; bottom: 7%; display: flex; flex-direction: column; align-items: flex-start; gap: {{.Gap}}px; color: #fff; }
.headline { margin: 0; font-size: {{.Headline.Size}}px; font-weight: {{.Headline.Weight}}; line-height: 1.1; }
.body { margin: 0; font-size: {{.Body.Size}}px; font-weight: {{.Body.Weight}}; line-height: 1.3; opacity: 0.92; }
.cta { display: inline-block; padding: 0.45em 1.2em; border-radius: 999px; background: #fff; color: #111; font-size: {{.CTA.Size}}px; font-weight: {{.CTA.Weight}}; }
</style>
</head>
<body>
<div class="canvas">
<img class="bg" src="{{.ImageURL}}" alt="">
<div class="shade"></div>
<div class="stack">
<h1 class="headline">{{.Assets.Headline}}</h1>
{{- if .Assets.BodyCopy}}
<p class="body">{{.Assets.BodyCopy}}</p>
{{- end}}
<span class="cta">{{.Assets.CTA}}</span>
</div>
</div>
</body>
</html>
`))

var defaultStyles = map[creative.TextRole]creative.FontSpec{
	creative.RoleHeadline: {Size: 56, Weight: 800},
	creative.RoleBody:     {Size: 28, Weight: 400},
	creative.RoleCTA:      {Size: 30, Weight: 700},
}

type documentData struct {
	Width, Height int
	Gap           int
	ImageURL      template.URL
	Assets        creative.Assets
	Headline      creative.FontSpec
	Body          creative.FontSpec
	CTA           creative.FontSpec
}

// Document builds the markup for an ad at the given size. Style rules from
// tmpl override the defaults; tmpl may be nil. Sizes scale with the canvas
// width relative to the 1200px reference.
func Document(assets creative.Assets, tmpl *creative.AdTemplate, d Dimensions) (string, error) {
	if err := assets.Validate(); err != nil {
		return "", err
	}
	if err := checkImageURL(assets.ImageURL); err != nil {
		return "", err
	}

	scale := float64(d.Width) / float64(DefaultDimensions.Width)
	font := func(role creative.TextRole) creative.FontSpec {
		spec := defaultStyles[role]
		if tmpl != nil {
			if s, ok := tmpl.StyleRules[role]; ok && s.Size > 0 {
				spec.Size = s.Size
				if s.Weight != 0 {
					spec.Weight = s.Weight
				}
			}
		}
		spec.Size = max(8, int(float64(spec.Size)*scale+0.5))
		return spec
	}

	assets.BodyCopy = strings.TrimSpace(assets.BodyCopy)
	data := documentData{
		Width:    d.Width,
		Height:   d.Height,
		Gap:      max(4, int(16*scale)),
		ImageURL: template.URL(assets.ImageURL), // scheme checked above
		Assets:   assets,
		Headline: font(creative.RoleHeadline),
		Body:     font(creative.RoleBody),
		CTA:      font(creative.RoleCTA),
	}

	var buf bytes.Buffer
	if err := documentTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func checkImageURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(raw), "data:image/") {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &creative.InvalidInputError{Field: "assets_json.image_url", Reason: err.Error()}
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if u.Host == "" {
			return &creative.InvalidInputError{Field: "assets_json.image_url", Reason: "missing host"}
		}
		return nil
	}
	return &creative.InvalidInputError{Field: "assets_json.image_url", Reason: "scheme must be http, https or data:image/"}
}
