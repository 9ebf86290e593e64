package bot

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"
)

var homeTemplate = template.Must(template.New("home").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Name}}</title>
<style>
body { display: flex; min-height: 100vh; margin: 0; align-items: center; justify-content: center;
       font-family: system-ui, sans-serif; background: linear-gradient(135deg, #fefce8, #ffedd5); color: #27272a; }
main { text-align: center; padding: 2rem; }
.icon { font-size: 6rem; }
code { background: #e4e4e7; padding: 0.2rem 0.5rem; border-radius: 0.25rem; }
a.button { display: inline-block; margin-top: 1.5rem; padding: 0.75rem 1.5rem; border-radius: 9999px;
           background: #27272a; color: #fff; text-decoration: none; }
small { display: block; margin-top: 2rem; color: #a1a1aa; }
</style>
</head>
<body>
<main>
<div class="icon">🤖</div>
<h1>{{.Name}}</h1>
<p>Mention <code>@{{.Name}}</code> in Slack and I'll chat with you like a friend!</p>
<p>💬 Relaxed and friendly</p>
<p>😄 A little playful</p>
<p>🎯 Sincere answers</p>
<a class="button" href="{{.EventsPath}}">Check API status</a>
<small>Powered by Go + Gemini</small>
</main>
</body>
</html>
`))

// handleHome serves the static landing page
func (s *Service) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := homeTemplate.Execute(w, struct {
		Name       string
		EventsPath string
	}{s.config.BotDisplayName, s.config.EventsPath}); err != nil {
		s.logger.Debug("Failed to render home page", zap.Error(err))
	}
}
