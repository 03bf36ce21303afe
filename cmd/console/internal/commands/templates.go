package commands

import "html/template"

const layoutHead = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{block "title" .}}Timax Console{{end}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 40rem; margin: 3rem auto; color: #1f2933; }
.notice { padding: .75rem 1rem; background: #fff4e5; border-left: 4px solid #f0a020; }
form.inline { display: inline; }
dt { font-weight: 600; }
</style>
</head>
<body>
`

const layoutFoot = `</body>
</html>
`

// sessionScript batches DOM activity, reports it every few seconds and
// navigates to the login view as soon as the session is gone.
const sessionScript = `<script>
(function () {
  var kinds = {};
  ["mousedown", "mousemove", "keypress", "scroll", "touchstart", "click"].forEach(function (k) {
    document.addEventListener(k, function () { kinds[k] = true; }, { passive: true, capture: true });
  });
  setInterval(function () {
    var batch = Object.keys(kinds);
    kinds = {};
    if (batch.length) {
      fetch("/api/activity", { method: "POST", headers: { "Content-Type": "application/json" }, body: JSON.stringify({ kinds: batch }) });
    }
  }, 5000);
  setInterval(function () {
    fetch("/api/session").then(function (r) { return r.json(); }).then(function (s) {
      if (!s.authenticated) {
        window.location.replace("/login?error_code=" + encodeURIComponent(s.logout_reason || "unauthenticated"));
      }
    });
  }, 10000);
})();
</script>
`

var loginTemplate = template.Must(template.New("login").Parse(layoutHead + `
<h1>Sign in</h1>
{{with .Message}}<p class="notice">{{.}}</p>{{end}}
<form method="post" action="/login">
  <p><label>Email <input type="email" name="email" value="{{.Email}}" required autofocus></label></p>
  <p><label>Password <input type="password" name="password" required></label></p>
  <p><button type="submit">Log in</button></p>
</form>
` + layoutFoot))

var dashboardTemplate = template.Must(template.New("dashboard").Parse(layoutHead + `
<h1>Welcome, {{.User.DisplayName}}</h1>
<dl>
  <dt>Email</dt><dd>{{.User.Email}}</dd>
  <dt>Role</dt><dd>{{.User.Role}}</dd>
  {{with .User.Branch}}<dt>Branch</dt><dd>{{.Name}} ({{.Code}})</dd>{{end}}
</dl>
<p><a href="/account">Account</a> · <a href="/admin">Session details</a></p>
<form class="inline" method="post" action="/logout"><button type="submit">Log out</button></form>
` + sessionScript + layoutFoot))

var adminTemplate = template.Must(template.New("admin").Parse(layoutHead + `
<h1>Session</h1>
<dl>
  <dt>User</dt><dd>{{.User.Email}} ({{.User.Role}})</dd>
  <dt>State</dt><dd>{{.State}}</dd>
  <dt>Generation</dt><dd>{{.Generation}}</dd>
  <dt>Next refresh</dt><dd>{{if .NextRefresh.IsZero}}none{{else}}{{.NextRefresh.Format "15:04:05"}}{{end}}</dd>
  <dt>Idle logout in</dt><dd>{{.IdleRemaining}}</dd>
</dl>
<p><a href="/">Back</a></p>
<form class="inline" method="post" action="/logout"><button type="submit">Log out</button></form>
` + sessionScript + layoutFoot))

var accountTemplate = template.Must(template.New("account").Parse(layoutHead + `
<h1>Account</h1>
{{with .Notice}}<p class="notice">{{.}}</p>{{end}}
{{with .Error}}<p class="notice">{{.}}</p>{{end}}
<h2>Profile</h2>
<form method="post" action="/account/profile">
  <p><label>First name <input name="first_name" value="{{.User.FirstName}}"></label></p>
  <p><label>Last name <input name="last_name" value="{{.User.LastName}}"></label></p>
  <p><label>Email <input type="email" name="email" value="{{.User.Email}}"></label></p>
  <p><label>Phone <input name="phone" value="{{.User.Phone}}"></label></p>
  <p><button type="submit">Save profile</button></p>
</form>
<h2>Password</h2>
<p>Changing the password signs you out everywhere.</p>
<form method="post" action="/account/password">
  <p><label>Current password <input type="password" name="old_password" required></label></p>
  <p><label>New password <input type="password" name="new_password" required></label></p>
  <p><label>Confirm new password <input type="password" name="confirm_password" required></label></p>
  <p><button type="submit">Change password</button></p>
</form>
<p><a href="/">Back</a></p>
` + sessionScript + layoutFoot))

var unauthorizedTemplate = template.Must(template.New("unauthorized").Parse(layoutHead + `
<h1>Not permitted</h1>
<p>Your role does not have access to this page.</p>
<p><a href="/">Back to the dashboard</a></p>
` + layoutFoot))
