package ui

import (
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/me/folio/pkg/model"
)

// Template functions available in all templates.
var templateFuncs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02 15:04")
	},
	"formatDatePtr": func(t *time.Time) string {
		if t == nil || t.IsZero() {
			return "-"
		}
		return t.Format("2006-01-02")
	},
	"statusColor": func(status string) string {
		switch strings.ToLower(status) {
		case "available", "active", "fulfilled":
			return "bg-green-100 text-green-800"
		case "pending", "reserved":
			return "bg-yellow-100 text-yellow-800"
		case "loaned":
			return "bg-blue-100 text-blue-800"
		case "overdue", "lost":
			return "bg-red-100 text-red-800"
		default:
			return "bg-gray-100 text-gray-800"
		}
	},
	"overdue": func(l model.Loan, now time.Time) bool {
		return l.IsOverdue(now)
	},
	"canCancel": func(r model.Reservation) bool {
		return r.Status.CanTransitionTo(model.ReservationCancelled)
	},
	"canReturn": func(l model.Loan) bool {
		return l.Status.CanTransitionTo(model.LoanReturned)
	},
	"urlquery": func(s string) string {
		return template.URLQueryEscaper(s)
	},
}

// renderTemplate renders a page inside the layout.
func renderTemplate(w io.Writer, name string, data map[string]any) error {
	content, ok := templates[name]
	if !ok {
		return fmt.Errorf("template not found: %s", name)
	}
	layout, ok := templates["layout"]
	if !ok {
		return fmt.Errorf("layout template not found")
	}

	tmpl, err := template.New("layout").Funcs(templateFuncs).Parse(layout)
	if err != nil {
		return fmt.Errorf("parse layout: %w", err)
	}
	if _, err := tmpl.New("content").Parse(content); err != nil {
		return fmt.Errorf("parse content: %w", err)
	}
	for compName, compContent := range templates {
		if strings.HasPrefix(compName, "components/") {
			if _, err := tmpl.New(filepath.Base(compName)).Parse(compContent); err != nil {
				return fmt.Errorf("parse component %s: %w", compName, err)
			}
		}
	}
	return tmpl.Execute(w, data)
}

var templates = map[string]string{
	"layout": `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <script src="https://cdn.tailwindcss.com"></script>
</head>
<body class="bg-gray-50 min-h-screen">
    <nav class="bg-white shadow-sm border-b">
        <div class="max-w-6xl mx-auto px-4 flex justify-between h-14">
            <div class="flex items-center space-x-6 text-sm font-medium">
                <a href="/books" class="text-lg font-bold text-blue-600">Folio</a>
                <a href="/books" class="text-gray-600 hover:text-gray-900">Books</a>
                {{if .Session}}
                <a href="/my/reservations" class="text-gray-600 hover:text-gray-900">My reservations</a>
                <a href="/my/loans" class="text-gray-600 hover:text-gray-900">My loans</a>
                {{if .Session.User.IsStaff}}
                <a href="/admin" class="text-gray-600 hover:text-gray-900">Admin</a>
                <a href="/admin/books" class="text-gray-600 hover:text-gray-900">Inventory</a>
                {{end}}
                {{end}}
            </div>
            <div class="flex items-center text-sm">
                {{if .Session}}
                <span class="text-gray-500 mr-4">{{.Session.User.DisplayName}}</span>
                <form action="/logout" method="POST"><button class="text-gray-500 hover:text-gray-700">Logout</button></form>
                {{else}}
                <a href="/login" class="text-blue-600">Sign in</a>
                {{end}}
            </div>
        </div>
    </nav>
    <main class="max-w-6xl mx-auto py-6 px-4">
        {{template "flash.html" .}}
        {{template "content" .}}
    </main>
</body>
</html>`,

	"components/flash.html": `{{define "flash.html"}}
{{if .Flash}}<div class="mb-4 rounded border border-green-200 bg-green-50 p-3 text-sm text-green-700">{{.Flash}}</div>{{end}}
{{if .Error}}<div class="mb-4 rounded border border-red-200 bg-red-50 p-3 text-sm text-red-700">{{.Error}}</div>{{end}}
{{end}}`,

	"components/pagination.html": `{{define "pagination.html"}}
{{with .Pagination}}
<div class="mt-4 flex items-center justify-between text-sm text-gray-600">
    <span>Page {{.Page}} of {{.TotalPages}} ({{.Total}} total)</span>
    <div class="space-x-2">
        {{if .HasPrev}}<a class="text-blue-600" href="?page={{.PrevPage}}&limit={{.PageSize}}&search={{urlquery .Search}}">Previous</a>{{end}}
        {{if .HasNext}}<a class="text-blue-600" href="?page={{.NextPage}}&limit={{.PageSize}}&search={{urlquery .Search}}">Next</a>{{end}}
    </div>
</div>
{{end}}
{{end}}`,

	"login": `{{define "content"}}
<div class="mx-auto mt-12 max-w-md rounded border bg-white p-6 shadow">
    <h1 class="text-xl font-semibold text-gray-900">Sign in</h1>
    <p class="mt-1 text-sm text-gray-600">Manage reservations, loans and the book catalog.</p>
    <form class="mt-6 space-y-4" action="/login" method="POST">
        <input type="hidden" name="redirect" value="{{.Redirect}}">
        <label class="block text-sm font-medium text-gray-700">Email
            <input name="email" type="email" value="{{.Email}}" required class="mt-1 block w-full rounded border px-3 py-2 text-sm">
        </label>
        <label class="block text-sm font-medium text-gray-700">Password
            <input name="password" type="password" required class="mt-1 block w-full rounded border px-3 py-2 text-sm">
        </label>
        {{if .ShowTOTP}}
        <label class="block text-sm font-medium text-gray-700">Authenticator code
            <input name="totp" inputmode="numeric" autocomplete="one-time-code" class="mt-1 block w-full rounded border px-3 py-2 text-sm">
        </label>
        {{else}}
        <label class="flex items-center text-xs text-gray-600">
            <input type="checkbox" name="show_totp" value="1" class="mr-2"> My account uses two-factor authentication
        </label>
        {{end}}
        <button type="submit" class="w-full rounded bg-blue-600 py-2 text-sm font-semibold text-white hover:bg-blue-700">Sign in</button>
    </form>
    <div class="mt-6 flex justify-between text-xs text-gray-600">
        <span>No account yet?</span>
        <a href="/register" class="font-medium text-blue-600 underline">Create one</a>
    </div>
</div>
{{end}}`,

	"register": `{{define "content"}}
<div class="mx-auto mt-12 max-w-md rounded border bg-white p-6 shadow">
    <h1 class="text-xl font-semibold text-gray-900">Create an account</h1>
    <form class="mt-6 space-y-4" action="/register" method="POST">
        <div class="grid grid-cols-2 gap-3">
            <label class="block text-sm font-medium text-gray-700">First name
                <input name="first_name" class="mt-1 block w-full rounded border px-3 py-2 text-sm">
            </label>
            <label class="block text-sm font-medium text-gray-700">Last name
                <input name="last_name" class="mt-1 block w-full rounded border px-3 py-2 text-sm">
            </label>
        </div>
        <label class="block text-sm font-medium text-gray-700">Email
            <input name="email" type="email" required class="mt-1 block w-full rounded border px-3 py-2 text-sm">
        </label>
        <label class="block text-sm font-medium text-gray-700">Password
            <input name="password" type="password" required class="mt-1 block w-full rounded border px-3 py-2 text-sm">
        </label>
        <label class="block text-sm font-medium text-gray-700">Confirm password
            <input name="confirm" type="password" required class="mt-1 block w-full rounded border px-3 py-2 text-sm">
        </label>
        <button type="submit" class="w-full rounded bg-blue-600 py-2 text-sm font-semibold text-white hover:bg-blue-700">Register</button>
    </form>
</div>
{{end}}`,

	"loading": `{{define "content"}}
<div class="mx-auto mt-24 max-w-md rounded border bg-white p-6 text-center text-sm text-gray-600 shadow">Checking your session...</div>
{{end}}`,

	"forbidden": `{{define "content"}}
<div class="mx-auto mt-24 max-w-md text-center">
    <h1 class="text-3xl font-bold text-gray-900">403</h1>
    <p class="mt-2 text-gray-600">You do not have permission to view this page.</p>
    <a href="/books" class="mt-4 inline-block text-blue-600 underline">Back to books</a>
</div>
{{end}}`,

	"error": `{{define "content"}}
<div class="mx-auto mt-24 max-w-md text-center">
    <h1 class="text-xl font-semibold text-gray-900">{{.Message}}</h1>
    {{if .Detail}}<p class="mt-2 text-gray-600">{{.Detail}}</p>{{end}}
    <a href="/books" class="mt-4 inline-block text-blue-600 underline">Back to books</a>
</div>
{{end}}`,

	"books": `{{define "content"}}
<div class="flex items-center justify-between mb-4">
    <h1 class="text-2xl font-bold text-gray-900">Books</h1>
    {{if .Session}}{{if .Session.User.IsStaff}}<a href="/books/new" class="rounded bg-blue-600 px-4 py-2 text-sm font-medium text-white">New book</a>{{end}}{{end}}
</div>
<form method="GET" action="/books" class="mb-4">
    <input name="search" value="{{.Pagination.Search}}" placeholder="Search by title, author or ISBN" class="w-full rounded border px-3 py-2 text-sm">
</form>
<div class="bg-white shadow rounded divide-y">
    {{range .Books}}
    <a href="/books/{{.ID}}" class="block px-4 py-3 hover:bg-gray-50">
        <div class="font-medium text-gray-900">{{.Title}}</div>
        <div class="text-sm text-gray-500">{{.Author}}{{if .Year}} · {{.Year}}{{end}}</div>
    </a>
    {{else}}
    <div class="px-4 py-6 text-center text-sm text-gray-500">No books found.</div>
    {{end}}
</div>
{{template "pagination.html" .}}
{{end}}`,

	"book": `{{define "content"}}
{{with .Book}}
<h1 class="text-2xl font-bold text-gray-900">{{.Title}}</h1>
<p class="text-gray-600">{{.Author}}{{if .Publisher}} · {{.Publisher}}{{end}}{{if .Year}} · {{.Year}}{{end}}</p>
{{if .ISBN}}<p class="text-sm text-gray-500">ISBN {{.ISBN}}</p>{{end}}
{{if .Description}}<p class="mt-4 text-gray-700">{{.Description}}</p>{{end}}
<h2 class="mt-6 text-lg font-semibold">Copies</h2>
<table class="mt-2 min-w-full bg-white shadow rounded text-sm">
    {{range .Copies}}
    <tr class="border-t">
        <td class="px-4 py-2">{{.Label}}</td>
        <td class="px-4 py-2">{{.Location}}</td>
        <td class="px-4 py-2"><span class="rounded px-2 py-0.5 {{statusColor (print .Status)}}">{{.Status}}</span></td>
    </tr>
    {{else}}
    <tr><td class="px-4 py-2 text-gray-500">No copies.</td></tr>
    {{end}}
</table>
{{end}}
{{if .Session}}
<div class="mt-6 flex space-x-3">
    {{if .Available}}
    <form action="/books/{{.Book.ID}}/reserve" method="POST"><button class="rounded bg-blue-600 px-4 py-2 text-sm text-white">Reserve</button></form>
    <form action="/books/{{.Book.ID}}/borrow" method="POST"><button class="rounded bg-green-600 px-4 py-2 text-sm text-white">Borrow</button></form>
    {{else}}
    <span class="text-sm text-gray-500">No copies available right now.</span>
    {{end}}
    {{if .Session.User.IsStaff}}
    <a href="/books/{{.Book.ID}}/edit" class="rounded bg-yellow-500 px-4 py-2 text-sm text-white">Edit</a>
    {{end}}
</div>
{{else}}
<p class="mt-6 text-sm"><a class="text-blue-600 underline" href="/login?redirect=/books/{{.Book.ID}}">Sign in</a> to reserve or borrow.</p>
{{end}}
{{end}}`,

	"book_form": `{{define "content"}}
<h1 class="text-2xl font-bold text-gray-900 mb-4">{{if .Book.ID}}Edit book{{else}}New book{{end}}</h1>
{{with .Book}}
<form action="{{$.Action}}" method="POST" class="bg-white shadow rounded p-6 space-y-3 max-w-xl">
    <label class="block text-sm">Title <input name="title" value="{{.Title}}" required class="mt-1 block w-full rounded border px-3 py-2"></label>
    <label class="block text-sm">Author <input name="author" value="{{.Author}}" class="mt-1 block w-full rounded border px-3 py-2"></label>
    <label class="block text-sm">ISBN <input name="isbn" value="{{.ISBN}}" class="mt-1 block w-full rounded border px-3 py-2"></label>
    <label class="block text-sm">Publisher <input name="publisher" value="{{.Publisher}}" class="mt-1 block w-full rounded border px-3 py-2"></label>
    <label class="block text-sm">Year <input name="year" value="{{if .Year}}{{.Year}}{{end}}" class="mt-1 block w-full rounded border px-3 py-2"></label>
    <label class="block text-sm">Genre <input name="genre" value="{{.Genre}}" class="mt-1 block w-full rounded border px-3 py-2"></label>
    <label class="block text-sm">Cover URL <input name="cover_url" value="{{.CoverURL}}" class="mt-1 block w-full rounded border px-3 py-2"></label>
    <label class="block text-sm">Description <textarea name="description" class="mt-1 block w-full rounded border px-3 py-2">{{.Description}}</textarea></label>
    <button class="rounded bg-blue-600 px-4 py-2 text-sm text-white">Save</button>
</form>
{{if .ID}}
<form action="/books/{{.ID}}/delete" method="POST" class="mt-4"><button class="text-sm text-red-600">Delete book</button></form>
{{end}}
{{end}}
{{end}}`,

	"my_loans": `{{define "content"}}
<h1 class="text-2xl font-bold text-gray-900 mb-4">My loans</h1>
<table class="min-w-full bg-white shadow rounded text-sm">
    <tr class="text-left text-gray-500"><th class="px-4 py-2">Book</th><th class="px-4 py-2">Borrowed</th><th class="px-4 py-2">Due</th><th class="px-4 py-2">Status</th></tr>
    {{range .Loans}}
    <tr class="border-t">
        <td class="px-4 py-2">{{.BookTitle}}</td>
        <td class="px-4 py-2">{{formatTime .BorrowedAt}}</td>
        <td class="px-4 py-2">{{formatDatePtr .DueDate}}</td>
        <td class="px-4 py-2">{{if overdue . $.Now}}<span class="rounded px-2 py-0.5 {{statusColor "overdue"}}">overdue</span>{{else}}<span class="rounded px-2 py-0.5 {{statusColor (print .Status)}}">{{.Status}}</span>{{end}}</td>
    </tr>
    {{else}}
    <tr><td class="px-4 py-6 text-center text-gray-500" colspan="4">You have no loans.</td></tr>
    {{end}}
</table>
{{template "pagination.html" .}}
{{end}}`,

	"my_reservations": `{{define "content"}}
<h1 class="text-2xl font-bold text-gray-900 mb-4">My reservations</h1>
<table class="min-w-full bg-white shadow rounded text-sm">
    <tr class="text-left text-gray-500"><th class="px-4 py-2">Book</th><th class="px-4 py-2">Created</th><th class="px-4 py-2">Status</th><th></th></tr>
    {{range .Reservations}}
    <tr class="border-t">
        <td class="px-4 py-2">{{.BookTitle}}</td>
        <td class="px-4 py-2">{{formatTime .CreatedAt}}</td>
        <td class="px-4 py-2"><span class="rounded px-2 py-0.5 {{statusColor (print .Status)}}">{{.Status}}</span></td>
        <td class="px-4 py-2">{{if canCancel .}}<form action="/my/reservations/{{.ID}}/cancel" method="POST"><button class="text-red-600">Cancel</button></form>{{end}}</td>
    </tr>
    {{else}}
    <tr><td class="px-4 py-6 text-center text-gray-500" colspan="4">You have no reservations.</td></tr>
    {{end}}
</table>
{{template "pagination.html" .}}
{{end}}`,

	"admin": `{{define "content"}}
<div class="flex items-center justify-between mb-4">
    <h1 class="text-2xl font-bold text-gray-900">Admin</h1>
    <div class="space-x-4 text-sm"><a href="/admin/books" class="text-blue-600">Inventory</a><a href="/admin/users" class="text-blue-600">Users</a></div>
</div>
<h2 class="text-lg font-semibold">Pending reservations</h2>
<table class="mt-2 min-w-full bg-white shadow rounded text-sm">
    {{range .Pending}}
    <tr class="border-t">
        <td class="px-4 py-2">{{.BookTitle}}</td>
        <td class="px-4 py-2">{{with .User}}{{.Email}}{{end}}</td>
        <td class="px-4 py-2">{{formatTime .CreatedAt}}</td>
        <td class="px-4 py-2"><form action="/admin/reservations/{{.ID}}/fulfill" method="POST"><button class="text-green-700">Fulfill</button></form></td>
    </tr>
    {{else}}
    <tr><td class="px-4 py-4 text-gray-500">No pending reservations.</td></tr>
    {{end}}
</table>
<h2 class="mt-8 text-lg font-semibold">Loans</h2>
<table class="mt-2 min-w-full bg-white shadow rounded text-sm">
    {{range .Loans}}
    <tr class="border-t">
        <td class="px-4 py-2">{{.BookTitle}}</td>
        <td class="px-4 py-2">{{with .User}}{{.Email}}{{end}}</td>
        <td class="px-4 py-2">{{formatDatePtr .DueDate}}</td>
        <td class="px-4 py-2">{{if overdue . $.Now}}<span class="rounded px-2 py-0.5 {{statusColor "overdue"}}">overdue</span>{{else}}<span class="rounded px-2 py-0.5 {{statusColor (print .Status)}}">{{.Status}}</span>{{end}}</td>
        <td class="px-4 py-2">{{if canReturn .}}<form action="/admin/loans/{{.ID}}/return" method="POST"><button class="text-blue-700">Return</button></form>{{end}}</td>
    </tr>
    {{else}}
    <tr><td class="px-4 py-4 text-gray-500">No loans.</td></tr>
    {{end}}
</table>
{{end}}`,

	"admin_users": `{{define "content"}}
<h1 class="text-2xl font-bold text-gray-900 mb-4">Users</h1>
<table class="min-w-full bg-white shadow rounded text-sm">
    {{range .Users}}
    <tr class="border-t">
        <td class="px-4 py-2">{{.DisplayName}}</td>
        <td class="px-4 py-2">{{.Email}}</td>
        <td class="px-4 py-2">{{.Role}}</td>
        <td class="px-4 py-2">{{if .TwoFactorEnabled}}2FA{{end}}</td>
    </tr>
    {{else}}
    <tr><td class="px-4 py-4 text-gray-500">No users.</td></tr>
    {{end}}
</table>
{{template "pagination.html" .}}
{{end}}`,

	"admin_books": `{{define "content"}}
<h1 class="text-2xl font-bold text-gray-900 mb-4">Inventory</h1>
<div class="bg-white shadow rounded divide-y">
    {{range .Books}}
    <div class="px-4 py-3">
        <a href="/admin/books?book={{.ID}}" class="font-medium text-gray-900">{{.Title}}</a>
        <span class="text-sm text-gray-500">{{.Author}}</span>
        {{if $.Expanded}}{{if eq $.Expanded.ID .ID}}
        <table class="mt-3 min-w-full text-sm">
            {{range $.Expanded.Copies}}
            <tr class="border-t">
                <td class="py-1">{{.Label}}</td>
                <td class="py-1">{{.Location}}</td>
                <td class="py-1">
                    <form action="/admin/copies/{{.ID}}/status" method="POST" class="inline">
                        <input type="hidden" name="book_id" value="{{$.Expanded.ID}}">
                        <select name="status" class="rounded border text-xs">
                            {{$cur := .Status}}{{range $.Statuses}}<option value="{{.}}" {{if eq . $cur}}selected{{end}}>{{.}}</option>{{end}}
                        </select>
                        <button class="text-xs text-blue-600">Set</button>
                    </form>
                </td>
                <td class="py-1">
                    <form action="/admin/copies/{{.ID}}/delete" method="POST" class="inline">
                        <input type="hidden" name="book_id" value="{{$.Expanded.ID}}">
                        <button class="text-xs text-red-600">Remove</button>
                    </form>
                </td>
            </tr>
            {{end}}
        </table>
        <form action="/admin/books/{{.ID}}/copies" method="POST" class="mt-2 flex space-x-2 text-sm">
            <input name="code" placeholder="Code" required class="rounded border px-2 py-1">
            <input name="location" placeholder="Location" class="rounded border px-2 py-1">
            <button class="rounded bg-blue-600 px-3 py-1 text-white">Add copy</button>
        </form>
        {{end}}{{end}}
    </div>
    {{end}}
</div>
{{template "pagination.html" .}}
{{end}}`,
}
