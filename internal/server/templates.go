package server

import (
	"html/template"

	"solarimager/internal/filters"
	"solarimager/internal/models"
	"solarimager/internal/solarwind"
)

type indexData struct {
	Version       string
	Filters       []filters.Filter
	Resolutions   []int
	Ranges        []solarwind.TimeRange
	Analyses      []models.AnalysisType
	DefaultFilter string
	Resolution    int
	FPS           float64
	Today         string
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>NASA Solar Imager</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 1000px; margin: 0 auto; padding: 20px; background: #10131a; color: #e8e8e8; }
  h1 { color: #f7b733; }
  fieldset { border: 1px solid #333; border-radius: 8px; margin-bottom: 16px; padding: 12px 16px; }
  legend { color: #f7b733; padding: 0 6px; }
  label { margin-right: 12px; }
  input, select, button { background: #1c2130; color: #e8e8e8; border: 1px solid #444; border-radius: 4px; padding: 4px 8px; }
  button { cursor: pointer; }
  #status { background: #1c2130; border-radius: 8px; padding: 12px; min-height: 3em; white-space: pre-wrap; }
  progress { width: 100%; }
  a { color: #6cb4ff; }
  .footer { color: #777; font-size: 0.85em; margin-top: 24px; }
</style>
</head>
<body>
<h1>NASA Solar Imager</h1>

<fieldset>
  <legend>Download images</legend>
  <form id="download">
    <label>Start <input type="date" name="start" value="{{.Today}}"></label>
    <label>End <input type="date" name="end" value="{{.Today}}"></label>
    <label>Filter <select name="filter">{{range .Filters}}<option value="{{.Code}}"{{if eq .Code $.DefaultFilter}} selected{{end}}>{{.Code}} {{.Name}}</option>{{end}}</select></label>
    <label>Resolution <select name="resolution">{{range .Resolutions}}<option value="{{.}}"{{if eq . $.Resolution}} selected{{end}}>{{.}}</option>{{end}}</select></label>
    <button type="submit">Download</button>
  </form>
</fieldset>

<fieldset>
  <legend>Create video</legend>
  <form id="video">
    <label>Start <input type="date" name="start" value="{{.Today}}"></label>
    <label>End <input type="date" name="end" value="{{.Today}}"></label>
    <label>Filter <select name="filter">{{range .Filters}}<option value="{{.Code}}"{{if eq .Code $.DefaultFilter}} selected{{end}}>{{.Code}} {{.Name}}</option>{{end}}</select></label>
    <label>FPS <input type="number" name="fps" min="1" max="60" step="1" value="{{.FPS}}"></label>
    <button type="submit">Create</button>
  </form>
</fieldset>

<fieldset>
  <legend>Solar wind analysis</legend>
  <form id="solarwind">
    <label>Range <select name="range">{{range .Ranges}}<option value="{{.}}"{{if eq . "24h"}} selected{{end}}>{{.}}</option>{{end}}</select></label>
    {{range .Analyses}}<label><input type="checkbox" name="analyses" value="{{.}}" checked> {{.}}</label>{{end}}
    <label>Export <input type="text" name="export" placeholder="solarwind.parquet"></label>
    <button type="submit">Analyze</button>
  </form>
  <p><a href="/api/solarwind/summary">Summary page</a> &middot; <a href="/api/solarwind/current">Current conditions</a></p>
</fieldset>

<fieldset>
  <legend>Maintenance</legend>
  <button id="cleanup">Clean corrupted files</button>
  <button id="cancel">Cancel running job</button>
  <a href="/api/stats">Archive stats</a> &middot; <a href="/api/jobs">Job history</a>
</fieldset>

<progress id="progress" value="0" max="1"></progress>
<div id="status">Ready.</div>

<div class="footer">solarimager {{.Version}}</div>

<script>
const status = document.getElementById('status');
const bar = document.getElementById('progress');

function show(text) { status.textContent = text; }

async function post(url, body) {
  const resp = await fetch(url, { method: 'POST', headers: { 'Content-Type': 'application/json' }, body: body ? JSON.stringify(body) : undefined });
  const data = await resp.json();
  if (!resp.ok) { show((data.message || data.error) + ''); return; }
  show('Started ' + (data.kind || '') + ' job ' + (data.id || ''));
}

function formBody(form) {
  const fd = new FormData(form);
  const body = {};
  for (const [k, v] of fd.entries()) {
    if (k === 'analyses') { (body.analyses = body.analyses || []).push(v); continue; }
    if (v === '') continue;
    body[k] = (k === 'resolution' || k === 'fps') ? Number(v) : v;
  }
  return body;
}

for (const id of ['download', 'video', 'solarwind']) {
  document.getElementById(id).addEventListener('submit', e => { e.preventDefault(); post('/api/' + id, formBody(e.target)); });
}
document.getElementById('cleanup').addEventListener('click', () => post('/api/cleanup'));
document.getElementById('cancel').addEventListener('click', async () => {
  const resp = await fetch('/api/cancel', { method: 'POST' });
  const data = await resp.json();
  show(data.cancelled ? 'Cancelling...' : 'No job is running.');
});

function links(result) {
  const out = [];
  if (!result) return out;
  if (result.url) out.push(result.url);
  for (const c of result.charts || []) out.push(c.url);
  if (result.summary) out.push(result.summary);
  if (result.export) out.push(result.export);
  return out;
}

function connect() {
  const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
  ws.onmessage = ev => {
    const msg = JSON.parse(ev.data);
    const job = msg.job;
    bar.value = job.progress || 0;
    let text = '[' + job.kind + '] ' + job.status + ': ' + (job.message || '');
    if (job.error) text += '\nError: ' + job.error;
    status.textContent = text;
    for (const href of links(job.result)) {
      const a = document.createElement('a');
      a.href = href; a.textContent = href; a.target = '_blank';
      status.appendChild(document.createElement('br'));
      status.appendChild(a);
    }
  };
  ws.onclose = () => setTimeout(connect, 2000);
}
connect();
</script>
</body>
</html>
`))
