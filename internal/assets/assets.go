// Package assets provides embedded static files for the application.
// Using Go's embed package allows for single-binary deployment without
// external file dependencies.
package assets

import (
	"bytes"
	"embed"
	"html"
	"html/template"
	"io/fs"
	"regexp"
)

// Templates embeds all HTML templates.
//
//go:embed templates/*.html
var Templates embed.FS

// GetTemplate parses and returns a named template from the embedded filesystem.
func GetTemplate(name string) (*template.Template, error) {
	return template.ParseFS(Templates, "templates/"+name)
}

// ReadTemplate returns the raw content of a template file.
func ReadTemplate(name string) ([]byte, error) {
	return fs.ReadFile(Templates, "templates/"+name)
}

// versionSanitizer removes any potentially dangerous characters from the
// version string, preventing XSS via build-time ldflags injection.
var versionSanitizer = regexp.MustCompile(`[^a-zA-Z0-9.\-_+]`)

// SanitizeVersion sanitizes a version string for HTML embedding.
// Returns "unknown" if the result is empty after sanitization.
func SanitizeVersion(version string) string {
	escaped := html.EscapeString(version)
	sanitized := versionSanitizer.ReplaceAllString(escaped, "")
	if sanitized == "" {
		return "unknown"
	}
	if len(sanitized) > 100 {
		sanitized = sanitized[:100]
	}
	return sanitized
}

// StatusPageData contains the data for rendering the status page.
type StatusPageData struct {
	Version       string
	GoVersion     string
	Uptime        string
	PoolInstances int
	PoolLeases    int
	Tasks         int
}

// statusPageTemplate is pre-compiled; html/template auto-escapes all values.
var statusPageTemplate = template.Must(template.New("status").Parse(statusPageHTML))

// RenderStatusPage renders the status page with the given data.
func RenderStatusPage(data StatusPageData) (string, error) {
	data.Version = SanitizeVersion(data.Version)

	var buf bytes.Buffer
	if err := statusPageTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const statusPageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>turnstiled status</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: linear-gradient(135deg, #1a1a2e 0%, #16213e 100%);
            color: #e0e0e0;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
            margin: 0;
        }
        .container {
            text-align: center;
            padding: 2rem;
            background: rgba(255,255,255,0.05);
            border-radius: 16px;
            backdrop-filter: blur(10px);
            box-shadow: 0 8px 32px rgba(0,0,0,0.3);
            max-width: 500px;
        }
        h1 {
            color: #f6a821;
            margin-bottom: 0.5rem;
            font-size: 2.5rem;
        }
        .status {
            display: inline-flex;
            align-items: center;
            gap: 0.5rem;
            padding: 0.75rem 1.5rem;
            background: rgba(0, 255, 128, 0.1);
            border: 1px solid rgba(0, 255, 128, 0.3);
            border-radius: 8px;
            color: #00ff80;
            font-weight: 600;
            margin-bottom: 1.5rem;
        }
        .status::before {
            content: '';
            width: 10px;
            height: 10px;
            background: #00ff80;
            border-radius: 50%;
            animation: pulse 2s infinite;
        }
        @keyframes pulse {
            0%, 100% { opacity: 1; }
            50% { opacity: 0.5; }
        }
        .info {
            text-align: left;
            background: rgba(0,0,0,0.2);
            padding: 1rem;
            border-radius: 8px;
            font-family: monospace;
            font-size: 0.9rem;
        }
        .info div {
            padding: 0.25rem 0;
        }
        .label {
            color: #888;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>turnstiled</h1>
        <div class="status">Service Healthy</div>
        <div class="info">
            <div><span class="label">Version:</span> {{.Version}}</div>
            <div><span class="label">Go Version:</span> {{.GoVersion}}</div>
            <div><span class="label">Uptime:</span> {{.Uptime}}</div>
            <div><span class="label">Browser Instances:</span> {{.PoolInstances}}</div>
            <div><span class="label">Leased Slots:</span> {{.PoolLeases}}</div>
            <div><span class="label">Tasks Held:</span> {{.Tasks}}</div>
        </div>
    </div>
</body>
</html>`
