package solver

import (
	"fmt"
	"html"
	"strings"
)

// widgetShell is the minimal page served in place of the target site. It
// renders the Turnstile widget against the target origin, which is all the
// challenge needs to issue a token for that site.
const widgetShell = `<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<title>Just a moment...</title>
	<script src="https://challenges.cloudflare.com/turnstile/v0/api.js" async defer></script>
</head>
<body>
	<div class="cf-turnstile" %s></div>
</body>
</html>`

// buildWidgetHTML renders the widget shell for the given sitekey. Optional
// action and cdata values are passed through to the widget. All values are
// attribute-escaped.
func buildWidgetHTML(sitekey, action, cdata string) string {
	var attrs strings.Builder
	fmt.Fprintf(&attrs, `data-sitekey="%s"`, html.EscapeString(sitekey))
	if action != "" {
		fmt.Fprintf(&attrs, ` data-action="%s"`, html.EscapeString(action))
	}
	if cdata != "" {
		fmt.Fprintf(&attrs, ` data-cdata="%s"`, html.EscapeString(cdata))
	}
	return fmt.Sprintf(widgetShell, attrs.String())
}
