package fakebackend

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
)

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}

	b.mu.Lock()
	user, ok := b.users[req.Username]
	if !ok || user.Password != req.Password {
		b.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid credentials"})
		return
	}
	tok := b.issueLocked(user.Username)
	u := *user
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  tok,
		"refresh_token": "refresh-" + tok,
		"user":          u,
	})
}

func (b *Backend) handleLogout(w http.ResponseWriter, r *http.Request, _ *User) {
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Token ")
	b.mu.Lock()
	delete(b.tokens, tok)
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) handleGetUser(w http.ResponseWriter, _ *http.Request, user *User) {
	b.mu.Lock()
	u := *user
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, u)
}

// handlePatchUser echoes only the fields it changed
func (b *Backend) handlePatchUser(w http.ResponseWriter, r *http.Request, user *User) {
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}

	fieldErrs := map[string][]string{}
	if email, ok := patch["email"].(string); ok && !strings.Contains(email, "@") {
		fieldErrs["email"] = []string{"Enter a valid email address."}
	}
	if name, ok := patch["first_name"].(string); ok && len(name) > 30 {
		fieldErrs["first_name"] = []string{"Ensure this field has no more than 30 characters."}
	}
	if len(fieldErrs) > 0 {
		writeJSON(w, http.StatusBadRequest, fieldErrs)
		return
	}

	echoed := map[string]any{}
	b.mu.Lock()
	for k, v := range patch {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch k {
		case "email":
			user.Email = s
		case "first_name":
			user.FirstName = s
		case "last_name":
			user.LastName = s
		default:
			continue
		}
		echoed[k] = s
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, echoed)
}

func (b *Backend) handleChangePassword(w http.ResponseWriter, r *http.Request, user *User) {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	defer b.mu.Unlock()
	if req.OldPassword != user.Password {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"old_password": {"Wrong password."}})
		return
	}
	user.Password = req.NewPassword
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed"})
}

func (b *Backend) handleOK(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

func (b *Backend) handleDepartments(w http.ResponseWriter, _ *http.Request, user *User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	visible := []Department{}
	for _, d := range b.departments {
		if user.Role == "admin" || containsInt(user.Departments, d.ID) {
			visible = append(visible, d)
		}
	}
	writeJSON(w, http.StatusOK, visible)
}

func (b *Backend) handleListEvents(w http.ResponseWriter, r *http.Request, _ *User) {
	q := r.URL.Query()
	severities := splitUpper(q.Get("severity"))
	statuses := splitLower(q.Get("status"))
	search := strings.ToLower(q.Get("search"))

	b.mu.Lock()
	results := []Event{}
	for _, e := range b.events {
		if len(severities) > 0 && !containsString(severities, strings.ToUpper(e.Severity)) {
			continue
		}
		if len(statuses) > 0 && !containsString(statuses, strings.ToLower(e.Status)) {
			continue
		}
		if v := q.Get("is_resolved"); v != "" && strconv.FormatBool(e.IsResolved) != v {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(e.Description), search) {
			continue
		}
		results = append(results, e)
	}
	b.mu.Unlock()

	if q.Get("sort") == "-timestamp" {
		for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
			results[i], results[j] = results[j], results[i]
		}
	}
	count := len(results)
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit < len(results) {
		results = results[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": count, "results": results})
}

func (b *Backend) handleGetEvent(w http.ResponseWriter, r *http.Request, _ *User) {
	id, _ := strconv.Atoi(mux.Vars(r)["id"])
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.events {
		if e.ID == id {
			writeJSON(w, http.StatusOK, e)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
}

func (b *Backend) handleStats(w http.ResponseWriter, _ *http.Request, _ *User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	counts := map[string]int{}
	for _, e := range b.events {
		counts[strings.ToUpper(e.Severity)]++
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": len(b.events), "severity_counts": counts})
}

func (b *Backend) handleAnalyze(w http.ResponseWriter, r *http.Request, _ *User) {
	subject := "submitted data"
	if id := mux.Vars(r)["id"]; id != "" {
		subject = "event " + id
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"analysis":        "Analysis of " + subject + ": credential stuffing pattern",
		"risk_level":      "HIGH",
		"recommendations": []string{"Lock the affected accounts", "Enable MFA"},
	})
}

func (b *Backend) handlePermissions(w http.ResponseWriter, _ *http.Request, user *User) {
	results := []map[string]any{}
	for i, p := range user.Permissions {
		results = append(results, map[string]any{
			"id": i + 1, "user": user.Username, "resource_type": "permission", "resource_id": p, "access_level": "grant",
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(results), "results": results})
}

// handleVerifyAccess grants admins everything and others their own departments
func (b *Backend) handleVerifyAccess(w http.ResponseWriter, r *http.Request, user *User) {
	var req struct {
		ResourceType string `json:"resource_type"`
		ResourceID   string `json:"resource_id"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	has := user.Role == "admin"
	if req.ResourceType == "department" {
		if id, err := strconv.Atoi(req.ResourceID); err == nil && containsInt(user.Departments, id) {
			has = true
		}
	}
	writeJSON(w, http.StatusOK, map[string]bool{"has_access": has})
}

func (b *Backend) handleEmptyPage(w http.ResponseWriter, _ *http.Request, _ *User) {
	writeJSON(w, http.StatusOK, map[string]any{"count": 0, "results": []any{}})
}

func (b *Backend) handleListFiles(w http.ResponseWriter, r *http.Request, _ *User) {
	b.mu.Lock()
	results := make([]File, 0, len(b.files))
	for _, f := range b.files {
		results = append(results, *f)
	}
	b.mu.Unlock()

	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit < len(results) {
		results = results[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(results), "recent_count": len(results), "results": results})
}

func (b *Backend) handleSearchFiles(w http.ResponseWriter, r *http.Request, _ *User) {
	var req struct {
		Query string `json:"query"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	results := []File{}
	for _, f := range b.files {
		if strings.Contains(strings.ToLower(f.Name), strings.ToLower(req.Query)) {
			results = append(results, *f)
		}
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"count": len(results), "results": results})
}

func (b *Backend) handleGetFile(w http.ResponseWriter, r *http.Request, _ *User) {
	if f := b.findFile(mux.Vars(r)["id"]); f != nil {
		writeJSON(w, http.StatusOK, *f)
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
}

func (b *Backend) handleDownload(w http.ResponseWriter, r *http.Request, _ *User) {
	f := b.findFile(mux.Vars(r)["id"])
	if f == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+f.Name+`"`)
	_, _ = w.Write(f.content)
}

func (b *Backend) handleUpload(w http.ResponseWriter, r *http.Request, _ *User) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": err.Error()})
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"file": {"No file was submitted."}})
		return
	}
	defer file.Close()
	content, _ := io.ReadAll(file)

	name := r.FormValue("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, map[string][]string{"name": {"This field is required."}})
		return
	}

	b.mu.Lock()
	f := &File{
		ID:          len(b.files) + 1,
		Name:        name,
		FileType:    r.FormValue("file_type"),
		Sensitivity: r.FormValue("sensitivity"),
		Description: r.FormValue("description"),
		Size:        len(content),
		UploadedAt:  now(),
		content:     content,
	}
	b.files = append(b.files, f)
	b.uploads[name] = string(content)
	b.mu.Unlock()

	writeJSON(w, http.StatusCreated, *f)
}

func (b *Backend) handleChat(w http.ResponseWriter, r *http.Request, _ *User) {
	var req struct {
		Message     string         `json:"message"`
		Preferences map[string]any `json:"preferences"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	b.mu.Lock()
	reply := b.chatReply
	b.mu.Unlock()

	resp := map[string]any{
		"message":           reply,
		"suggested_actions": []string{"Review open alerts"},
	}
	if show, _ := req.Preferences["show_sources"].(bool); show {
		resp["sources"] = []map[string]string{{"title": "Incident playbook", "url": "https://kb.example/playbook"}}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (b *Backend) findFile(id string) *File {
	n, err := strconv.Atoi(id)
	if err != nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range b.files {
		if f.ID == n {
			return f
		}
	}
	return nil
}

func splitUpper(s string) []string {
	return split(s, strings.ToUpper)
}

func splitLower(s string) []string {
	return split(s, strings.ToLower)
}

func split(s string, norm func(string) string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, norm(p))
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsInt(list []int, n int) bool {
	for _, v := range list {
		if v == n {
			return true
		}
	}
	return false
}
