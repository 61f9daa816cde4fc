package website

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/wolfeidau/docsplain/internal/document"
	"github.com/wolfeidau/docsplain/internal/kbeditor"
	"github.com/wolfeidau/docsplain/internal/models"
	"github.com/wolfeidau/docsplain/internal/session"
)

//go:embed templates/*.html
var templateFS embed.FS

// blankRows are appended to the editor tables so new entries can be added.
const blankRows = 2

var pageTitles = map[string]string{
	"login":    "Sign in",
	"register": "Create organization",
	"check_kb": "Loading",
	"setup_kb": "Knowledge base",
	"main_app": "Release notes",
	"error":    "Error",
}

type pageData struct {
	Title   string
	User    *models.User
	Pending *models.IdentityClaims
	Flashes []session.Flash
	Form    *kbeditor.Form
	Blocks  []document.Block
	Error   string
}

type renderer struct {
	pages map[string]*template.Template
}

func newRenderer() (*renderer, error) {
	r := &renderer{pages: map[string]*template.Template{}}

	for page := range pageTitles {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+page+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", page, err)
		}
		r.pages[page] = tmpl
	}

	return r, nil
}

func (r *renderer) render(w http.ResponseWriter, req *http.Request, status int, page string, data *pageData) {
	tmpl, ok := r.pages[page]
	if !ok {
		http.Error(w, "page not found", http.StatusInternalServerError)
		return
	}

	data.Title = pageTitles[page]

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		zerolog.Ctx(req.Context()).Error().Err(err).Str("page", page).Msg("Failed to render page")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// editableForm returns a copy of form with blank rows for new entries.
func editableForm(form *kbeditor.Form) *kbeditor.Form {
	f := *form
	f.Categories = append(append([]kbeditor.CategoryRow{}, form.Categories...), make([]kbeditor.CategoryRow, blankRows)...)
	f.Terminology = append(append([]kbeditor.TermRow{}, form.Terminology...), make([]kbeditor.TermRow, blankRows)...)
	return &f
}

// formFromRequest reads the knowledge base editor fields. Rows are matched by position.
func formFromRequest(r *http.Request) *kbeditor.Form {
	form := &kbeditor.Form{
		CompanyName: r.PostFormValue("company_name"),
		ToneRule:    r.PostFormValue("tone_rule"),
	}

	names := r.PostForm["category_name"]
	descriptions := r.PostForm["category_description"]
	keywords := r.PostForm["category_keywords"]
	for i, name := range names {
		form.Categories = append(form.Categories, kbeditor.CategoryRow{
			Name:        name,
			Description: at(descriptions, i),
			Keywords:    at(keywords, i),
		})
	}

	replacements := r.PostForm["replacement"]
	for i, term := range r.PostForm["term"] {
		form.Terminology = append(form.Terminology, kbeditor.TermRow{
			Term:        term,
			Replacement: at(replacements, i),
		})
	}

	return form
}

func at(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}
