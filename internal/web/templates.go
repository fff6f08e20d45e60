package web

import (
	"html/template"
	"log"
	"net/http"

	"todolist/internal/model"
	"todolist/internal/view"
)

type templateWrapper struct {
	tmpl *template.Template
}

func newTemplateWrapper() *templateWrapper {
	return &templateWrapper{tmpl: newTemplates()}
}

func (tw *templateWrapper) Render(w http.ResponseWriter, name string, data any) {
	tw.RenderStatus(w, http.StatusOK, name, data)
}

func (tw *templateWrapper) RenderStatus(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := tw.tmpl.ExecuteTemplate(w, name, data); err != nil {
		log.Printf("[warn] render %s: %v", name, err)
	}
}

type filterOption struct {
	Value  string
	Label  string
	Active bool
}

type pageData struct {
	State          view.State
	Alerts         []string
	Filters        []filterOption
	GoogleEnabled  bool
	DisplayName    string
	OngoingCount   int
	CompletedCount int
}

type resetData struct {
	Token string
	Error string
	Done  bool
}

func filterOptions(active model.Filter) []filterOption {
	out := make([]filterOption, 0, len(model.Filters))
	for _, f := range model.Filters {
		out = append(out, filterOption{Value: string(f), Label: f.Label(), Active: f == active})
	}
	return out
}

func newTemplates() *template.Template {
	funcs := template.FuncMap{
		"isScreen": func(s view.Screen, name string) bool { return s.String() == name },
	}
	tmpl := template.Must(template.New("page").Funcs(funcs).Parse(pageTemplate))
	template.Must(tmpl.New("reset").Parse(resetTemplate))
	template.Must(tmpl.New("style").Parse(styleTemplate))
	return tmpl
}

const styleTemplate = `<style>
    body {
      margin: 0;
      font-family: "Helvetica Neue", Arial, sans-serif;
      color: #1f2933;
      background: #f5f7fa;
    }
    main {
      max-width: 560px;
      margin: 48px auto;
      padding: 24px 28px;
      background: #fff;
      border: 1px solid #d9e2ec;
      border-radius: 10px;
    }
    h1 {
      margin-top: 0;
      font-size: 24px;
    }
    form.stack {
      display: flex;
      flex-direction: column;
      gap: 10px;
    }
    input[type=text], input[type=email], input[type=password] {
      padding: 8px 10px;
      border: 1px solid #bcccdc;
      border-radius: 6px;
      font-size: 15px;
    }
    button {
      padding: 8px 14px;
      border: 1px solid #334e68;
      border-radius: 6px;
      background: #334e68;
      color: #fff;
      cursor: pointer;
    }
    button.link {
      background: none;
      border: none;
      color: #2680c2;
      padding: 0;
    }
    .alert {
      padding: 10px 12px;
      margin-bottom: 14px;
      border-radius: 6px;
      background: #ffe3e3;
      color: #8a041a;
    }
    .success {
      padding: 10px 12px;
      margin-bottom: 14px;
      border-radius: 6px;
      background: #e3f9e5;
      color: #05400a;
    }
    .bar {
      display: flex;
      justify-content: space-between;
      align-items: center;
      margin-bottom: 16px;
    }
    .inline {
      display: inline;
    }
    ul.todos {
      list-style: none;
      padding: 0;
    }
    ul.todos li {
      display: flex;
      align-items: center;
      gap: 10px;
      padding: 8px 0;
      border-bottom: 1px solid #f0f4f8;
    }
    ul.todos li .name {
      flex: 1;
    }
    ul.todos li.done .name {
      text-decoration: line-through;
      color: #829ab1;
    }
    .filters button.active {
      background: #102a43;
    }
    .filters button {
      background: #9fb3c8;
      border-color: #9fb3c8;
    }
    .muted {
      color: #627d98;
      font-size: 13px;
    }
  </style>`

const pageTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Todo List</title>
  {{template "style"}}
</head>
<body>
<main>
  {{range .Alerts}}<div class="alert" role="alert">{{.}}</div>{{end}}

  {{if isScreen .State.Screen "auth"}}
    {{if .State.IsSignUp}}
      <h1>Sign Up</h1>
      {{if .State.SuccessMessage}}<div class="success">{{.State.SuccessMessage}}</div>{{end}}
      <form class="stack" method="post" action="/auth/signup">
        <input type="text" name="username" placeholder="Username" value="{{.State.Username}}" required>
        <input type="email" name="email" placeholder="Email" value="{{.State.Email}}" required>
        <input type="password" name="password" placeholder="Password" required>
        <input type="password" name="confirm_password" placeholder="Confirm Password" required>
        <button type="submit">Sign Up</button>
      </form>
      <form method="post" action="/auth/mode">
        <p>Already have an account? <button class="link" type="submit">Sign In</button></p>
      </form>
    {{else}}
      <h1>Sign In</h1>
      <form class="stack" method="post" action="/auth/signin">
        <input type="email" name="email" placeholder="Email" value="{{.State.Email}}" required>
        <input type="password" name="password" placeholder="Password" required>
        <button type="submit">Sign In</button>
        <button class="link" type="submit" formaction="/auth/reset" formnovalidate>Forgot Password?</button>
      </form>
      {{if .GoogleEnabled}}<p><a href="/auth/google">Sign in with Google</a></p>{{end}}
      <form method="post" action="/auth/mode">
        <p>Don't have an account? <button class="link" type="submit">Sign Up</button></p>
      </form>
    {{end}}
  {{end}}

  {{if isScreen .State.Screen "todos"}}
    <div class="bar">
      <h1>Todo List</h1>
      <div>
        <form class="inline" method="post" action="/profile"><button type="submit">View Profile</button></form>
        <form class="inline" method="post" action="/signout"><button type="submit">Sign Out</button></form>
      </div>
    </div>
    <p class="muted">Signed in as {{.DisplayName}} &middot; {{.OngoingCount}} ongoing, {{.CompletedCount}} completed</p>
    <form class="bar" method="post" action="/todos">
      <input type="text" name="todo" placeholder="Add a new todo" value="{{.State.TodoInput}}">
      <button type="submit">Add Todo</button>
    </form>
    <form class="filters" method="post" action="/filter">
      {{range .Filters}}<button type="submit" name="filter" value="{{.Value}}"{{if .Active}} class="active"{{end}}>{{.Label}}</button> {{end}}
    </form>
    <ul class="todos">
      {{range .State.Visible}}
      <li{{if .Completed}} class="done"{{end}}>
        <form class="inline" method="post" action="/todos/{{.ID}}/toggle">
          <button type="submit">{{if .Completed}}Undo{{else}}Done{{end}}</button>
        </form>
        <span class="name">{{.TodoName}}</span>
        <form class="inline" method="post" action="/todos/{{.ID}}/delete">
          <button type="submit">Delete</button>
        </form>
      </li>
      {{else}}
      <li class="muted">Nothing here.</li>
      {{end}}
    </ul>
  {{end}}

  {{if isScreen .State.Screen "profile"}}
    <div class="bar">
      <h1>Profile</h1>
      <form class="inline" method="post" action="/profile/close"><button type="submit">Go to Todo List</button></form>
    </div>
    <p>Email: {{with .State.User}}{{.Email}}{{end}}</p>
    <p>Username: {{.State.ProfileUsername}}</p>
    {{if .State.ProfileStatus}}<div class="{{if .State.ProfileFailed}}alert{{else}}success{{end}}">{{.State.ProfileStatus}}</div>{{end}}
    <form class="stack" method="post" action="/profile/username">
      <input type="text" name="username" placeholder="New Username" value="{{.State.NewUsername}}">
      <button type="submit">Update Username</button>
    </form>
    <form method="post" action="/signout"><p><button type="submit">Sign Out</button></p></form>
  {{end}}
</main>
</body>
</html>
`

const resetTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>Reset Password</title>
  {{template "style"}}
</head>
<body>
<main>
  <h1>Reset Password</h1>
  {{if .Done}}
    <div class="success">Your password has been updated.</div>
    <p><a href="/">Sign in</a></p>
  {{else}}
    {{if .Error}}<div class="alert" role="alert">{{.Error}}</div>{{end}}
    <form class="stack" method="post" action="/reset/{{.Token}}">
      <input type="password" name="password" placeholder="New Password" required>
      <input type="password" name="confirm_password" placeholder="Confirm Password" required>
      <button type="submit">Save Password</button>
    </form>
  {{end}}
</main>
</body>
</html>
`
