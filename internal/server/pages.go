package server

// indexTemplate is the directory listing, rendered by the engine it
// fronts for.
const indexTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>tango templates</title>
    <style>
        body { font-family: -apple-system, sans-serif; max-width: 720px; margin: 2rem auto; padding: 0 1rem; color: #1a202c; }
        h1 { font-size: 1.4rem; border-bottom: 1px solid #e2e8f0; padding-bottom: .5rem; }
        li { margin: .25rem 0; }
        small { color: #718096; margin-left: .5rem; }
        footer { margin-top: 2rem; color: #a0aec0; font-size: .8rem; }
    </style>
</head>
<body>
    <h1>Templates</h1>
    {% if templates %}
    <ul>
    {% for t in templates %}
        <li><a href="/view/{{ t.name|urlencode }}">{{ t.name }}</a><small>{{ t.dir }}</small></li>
    {% endfor %}
    </ul>
    {% else %}
    <p>No templates found under {{ dirs|join:", " }}.</p>
    {% endif %}
    <footer>tango {{ version }}</footer>
</body>
</html>
`

// errorPage wraps render failures; the first %s is the template name,
// the second the message shown to the browser.
const errorPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>render error</title></head>
<body style="font-family: monospace; max-width: 720px; margin: 2rem auto;">
    <h1 style="color: #c53030;">Failed to render %s</h1>
    <pre style="background: #fff5f5; padding: 1rem; white-space: pre-wrap;">%s</pre>
</body>
</html>
`

// reloadScript is injected into rendered pages when live reload is on.
const reloadScript = `<script>
(function() {
    var proto = window.location.protocol === "https:" ? "wss" : "ws";
    var ws = new WebSocket(proto + "://" + window.location.host + "/ws");
    ws.onmessage = function(event) {
        var message = JSON.parse(event.data);
        if (message.type === "full_reload") {
            window.location.reload();
        }
    };
})();
</script>
`
